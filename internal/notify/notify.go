// Package notify shows desktop notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

// ErrNoNotifier is returned by Command when the notifier binary is missing.
var ErrNoNotifier = errors.New("notification command not available")

// Command runs an external program with the title and body as arguments,
// notify-send by default.
type Command struct {
	name string
	args []string
	run  func(ctx context.Context, name string, args ...string) error
}

func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoNotifier, name)
		}
		return fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	return nil
}

func (c *Command) Notify(ctx context.Context, title, body string) error {
	if c.name == "" {
		return ErrNoNotifier
	}
	args := append(append([]string{}, c.args...), title, body)
	return c.run(ctx, c.name, args...)
}

// Terminal prints notifications as a highlighted line.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Notify(_ context.Context, title, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "%s %s\n", color.New(color.Bold, color.FgYellow).Sprintf("[%s]", title), body)
	return err
}

// Log writes notifications to the logger. The worker uses it when no
// desktop session is available.
type Log struct {
	logger logging.Logger
}

func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, title, body string) error {
	l.logger.Info(ctx, "notification", "title", title, "body", body)
	return nil
}

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Fallback tries Primary and uses Secondary only when Primary fails.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

func (f Fallback) Notify(ctx context.Context, title, body string) error {
	err := f.Primary.Notify(ctx, title, body)
	if err == nil {
		return nil
	}
	if serr := f.Secondary.Notify(ctx, title, body); serr != nil {
		return errors.Join(err, serr)
	}
	return nil
}
