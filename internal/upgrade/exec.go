package upgrade

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecRunner runs steps as child processes with stderr folded into stdout.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	return string(out), err
}
