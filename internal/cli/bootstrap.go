package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	bootstrapBotURL string
	bootstrapFollow bool
	restartNewID    bool
	restartFollow   bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Start a new chat session against a bot",
	Long: `Start a new conversation with the bot, open its DirectLine stream and
persist the chat record. Prints the session as JSON. With --follow the
session stays open and incoming activities are printed as JSON lines.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

var restartCmd = &cobra.Command{
	Use:   "restart <conversation-id>",
	Short: "Restart a persisted chat session",
	Long: `Restart the conversation named by a persisted chat record. The same
conversation id is reused unless --new-id is given, in which case the
server-side state is transferred to a freshly generated id.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapBotURL, "bot-url", "", "bot endpoint (default is bot.url from config)")
	bootstrapCmd.Flags().BoolVar(&bootstrapFollow, "follow", false, "keep the session open and print activities")
	restartCmd.Flags().BoolVar(&restartNewID, "new-id", false, "move the conversation to a newly generated id")
	restartCmd.Flags().BoolVar(&restartFollow, "follow", false, "keep the session open and print activities")

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(restartCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	botURL := bootstrapBotURL
	if botURL == "" {
		botURL = cfg.Bot.URL
	}
	if botURL == "" {
		return fmt.Errorf("no bot url: pass --bot-url or set bot.url")
	}

	env, err := openSessionEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), env.operationTimeout())
	sess, err := env.manager.Bootstrap(ctx, botURL)
	cancel()
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	if err := writeJSON(cmd.OutOrStdout(), sess); err != nil {
		return err
	}
	if !bootstrapFollow {
		return nil
	}
	return followUntilSignal(cmd, env)
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	env, err := openSessionEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), env.operationTimeout())
	sess, err := env.manager.Restart(ctx, args[0], restartNewID)
	cancel()
	if err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}

	if err := writeJSON(cmd.OutOrStdout(), sess); err != nil {
		return err
	}
	if !restartFollow {
		return nil
	}
	return followUntilSignal(cmd, env)
}

func followUntilSignal(cmd *cobra.Command, env *sessionEnv) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return env.follow(ctx, cmd.OutOrStdout())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
