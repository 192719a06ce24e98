package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/samber/lo"
	"github.com/tengjizhang/feedexec/internal/logger"
	"github.com/tengjizhang/feedexec/internal/model"
)

const (
	TitlePlaceholder = "#TITLE"
	LinkPlaceholder  = "#LINK"
)

var ErrLaunch = errors.New("failed to launch command")

// Expand replaces every #TITLE and #LINK in template. Replacement is a
// single left-to-right pass, so placeholder text inside title or link is
// left as is.
func Expand(template, title, link string) string {
	return strings.NewReplacer(TitlePlaceholder, title, LinkPlaceholder, link).Replace(template)
}

func ExpandArgs(templates []string, item model.Item) []string {
	return lo.Map(templates, func(tmpl string, _ int) string {
		return Expand(tmpl, item.Title, item.Link)
	})
}

type Dispatcher struct {
	cmd  string
	args []string
	out  io.Writer
}

// New returns a dispatcher writing child stdout to out. An empty cmd makes
// Dispatch a no-op.
func New(cmd string, args []string, out io.Writer) *Dispatcher {
	return &Dispatcher{cmd: cmd, args: args, out: out}
}

func (d *Dispatcher) Enabled() bool {
	return d.cmd != ""
}

// Dispatch runs the command for item, waits for it and copies its stdout.
// The exit status is ignored; only a failure to start is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, item model.Item) error {
	if !d.Enabled() {
		return nil
	}
	args := ExpandArgs(d.args, item)

	cmd := exec.CommandContext(ctx, d.cmd, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("%w %q: %v", ErrLaunch, d.cmd, err)
		}
		logger.L.Debugw("command exited with error",
			"cmd", d.cmd,
			"link", item.Link,
			"exit_code", exitErr.ExitCode(),
		)
	}

	if len(output) > 0 {
		if _, err := d.out.Write(output); err != nil {
			return fmt.Errorf("write command output: %w", err)
		}
	}
	return nil
}
