package orchestrator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer answers yes/no questions that gate orchestrator progress:
// per-batch go-ahead when no notifier is active, and checkpoint reset
// after configuration drift. Keeping this behind an interface keeps the
// loop free of direct terminal interaction.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// AutoApprove answers yes to every prompt. Used when an automated
// notifier drives the pace, or for unattended runs.
type AutoApprove struct{}

// Confirm always returns true.
func (AutoApprove) Confirm(string) (bool, error) { return true, nil }

// AutoDeny answers no to every prompt. Useful for dry runs that must
// never reset state or submit.
type AutoDeny struct{}

// Confirm always returns false.
func (AutoDeny) Confirm(string) (bool, error) { return false, nil }

// Interactive prompts on Out and reads a y/n answer from In. Only "y"
// or "yes" (case-insensitive) approves; anything else, including a bare
// enter, is a no.
type Interactive struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// Confirm writes the prompt and reads one answer line.
func (c *Interactive) Confirm(prompt string) (bool, error) {
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	if _, err := fmt.Fprintf(c.Out, "%s [y/n] ", prompt); err != nil {
		return false, err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
