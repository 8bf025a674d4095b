package watchdog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Fetcher returns the currently overdue tasks.
type Fetcher interface {
	Overdue(ctx context.Context) ([]Task, error)
}

// ExecFetcher runs the task-tracker CLI and decodes its JSON stdout.
type ExecFetcher struct {
	Argv    []string
	Timeout time.Duration
}

func (f ExecFetcher) Overdue(ctx context.Context) ([]Task, error) {
	if len(f.Argv) == 0 || f.Argv[0] == "" {
		return nil, errors.New("tracker command not configured")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Argv[0], f.Argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children of a killed shell can hold the pipes open
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", f.Argv[0], ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", f.Argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return decodeTasks(stdout.Bytes())
}
