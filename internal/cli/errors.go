package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tengjizhang/feedexec/internal/config"
	"github.com/tengjizhang/feedexec/internal/dispatch"
	"github.com/tengjizhang/feedexec/internal/filter"
)

const (
	exitInternal      = 1
	exitInvalidConfig = 2
	exitLaunchFailed  = 3
	exitMissingField  = 4
	exitInterrupted   = 130
)

func ErrorExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrInvalidConfig):
		return exitInvalidConfig
	case errors.Is(err, dispatch.ErrLaunch):
		return exitLaunchFailed
	case errors.Is(err, filter.ErrMissingField):
		return exitMissingField
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitInternal
	}
}

func FormatError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return fmt.Sprintf("Error [invalid-config]: %v", err)
	case errors.Is(err, dispatch.ErrLaunch):
		return fmt.Sprintf("Error [launch]: %v", err)
	case errors.Is(err, filter.ErrMissingField):
		return fmt.Sprintf("Error [missing-field]: %v", err)
	case errors.Is(err, context.Canceled):
		return "Error [interrupted]: run canceled"
	default:
		return fmt.Sprintf("Error [internal]: %v", err)
	}
}

func PrintError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err))
}
