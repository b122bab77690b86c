package logger

import (
	"io"
	"regexp"
)

const mask = "[REDACTED]"

// rule masks the credential part of a match and keeps the rest. keep is the
// leading capture group left in place; rules without one mask the whole match.
type rule struct {
	re   *regexp.Regexp
	keep bool
}

func (r rule) apply(s string) string {
	if r.keep {
		return r.re.ReplaceAllString(s, "${1}"+mask)
	}
	return r.re.ReplaceAllLiteralString(s, mask)
}

// Redactor masks credentials that pass through backend and DirectLine logging
type Redactor struct {
	rules []rule
}

var defaultRules = []rule{
	// DirectLine tokens and the base64 credential blob sent to the backend
	{re: regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._=+/-]+`), keep: true},
	// stream URLs carry the token as a query parameter
	{re: regexp.MustCompile(`([?&]t=)[A-Za-z0-9._-]{20,}`), keep: true},
	{re: regexp.MustCompile(`(?i)(msa_?password["\s:=]+"?)[^"\s,}]+`), keep: true},
	{re: regexp.MustCompile(`(token["\s:=]+"?)[A-Za-z0-9._-]{20,}`), keep: true},
	{re: regexp.MustCompile(`(?i)((?:secret|password)["\s:=]+"?)[^"\s,}]+`), keep: true},
}

// NewRedactor creates a redactor with the default credential rules
func NewRedactor() *Redactor {
	return &Redactor{rules: append([]rule(nil), defaultRules...)}
}

// AddPattern masks every match of pattern in full
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re: re})
	return nil
}

// Redact returns s with credentials masked
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.apply(s)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return redactingWriter{out: w, r: r}
}

type redactingWriter struct {
	out io.Writer
	r   *Redactor
}

// Write reports len(p) on success so zerolog does not see a short write
// when masking shortens the line.
func (w redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.out, w.r.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
