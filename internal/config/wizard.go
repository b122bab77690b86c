package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Wizard walks through the settings needed to run webchat against a
// conversation backend and returns the resulting config.
type Wizard struct {
	in        *bufio.Reader
	out       io.Writer
	validator *Validator
}

// NewWizard reads answers from in and writes prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		in:        bufio.NewReader(in),
		out:       out,
		validator: NewValidator(),
	}
}

// Run asks each question in turn. Blank answers keep the default shown in
// brackets; invalid answers are asked again.
func (w *Wizard) Run() (*Config, error) {
	cfg := DefaultConfig()
	fmt.Fprintln(w.out, "=== Webchat configuration ===")

	host, err := w.askValid("Conversation backend URL", cfg.Backend.HostURL, func(s string) error {
		return w.validator.ValidateURL("backend url", s)
	})
	if err != nil {
		return nil, err
	}
	cfg.Backend.HostURL = host

	bot, err := w.askValid("Bot endpoint to open on start (blank for none)", "", func(s string) error {
		if s == "" {
			return nil
		}
		return w.validator.ValidateURL("bot url", s)
	})
	if err != nil {
		return nil, err
	}
	cfg.Bot.URL = bot

	name, err := w.ask("Display name for the chat user", cfg.Chat.UserName)
	if err != nil {
		return nil, err
	}
	cfg.Chat.UserName = name

	if cfg.Chat.Greeting, err = w.confirm("Send the greeting when a session starts?", cfg.Chat.Greeting); err != nil {
		return nil, err
	}

	driver, err := w.askValid("Record store (memory/file/sqlite)", cfg.Store.Driver, func(s string) error {
		switch s {
		case "memory", "file", "sqlite":
			return nil
		}
		return fmt.Errorf("unknown store driver %q", s)
	})
	if err != nil {
		return nil, err
	}
	cfg.Store.Driver = driver

	if cfg.Gateway.Enabled, err = w.confirm("Enable the websocket gateway for chat panels?", false); err != nil {
		return nil, err
	}
	if cfg.Gateway.Enabled {
		secret, err := w.ask("Gateway shared secret (blank to generate)", "")
		if err != nil {
			return nil, err
		}
		if secret == "" {
			if secret, err = gonanoid.New(32); err != nil {
				return nil, fmt.Errorf("failed to generate shared secret: %w", err)
			}
			fmt.Fprintf(w.out, "Generated shared secret: %s\n", secret)
		}
		cfg.Gateway.SharedSecret = secret
	}

	level, err := w.askValid("Log level (debug/info/warn/error)", cfg.Logging.Level, w.validator.ValidateLogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out, "Configuration complete.")
	return cfg, nil
}

func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	line, err := w.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return def, nil
}

func (w *Wizard) askValid(prompt, def string, check func(string) error) (string, error) {
	for {
		answer, err := w.ask(prompt, def)
		if err != nil {
			return "", err
		}
		if err := check(answer); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		return answer, nil
	}
}

func (w *Wizard) confirm(prompt string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	answer, err := w.askValid(prompt+" ("+hint+")", "", func(s string) error {
		switch strings.ToLower(s) {
		case "", "y", "yes", "n", "no":
			return nil
		}
		return fmt.Errorf("answer y or n")
	})
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}
