package engine

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/logger"
)

// Runner executes an external binary and returns its combined output.
// Tests substitute a fake so no real engine is needed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements Runner using OS processes.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run blocks until the process exits. There is no timeout beyond ctx.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	logger.WithFields(map[string]interface{}{
		"cmd":  name,
		"args": args,
	}).Debug("executed engine command")
	if err != nil {
		return out.Bytes(), &apperr.CommandError{
			Args:   append([]string{name}, args...),
			Output: out.String(),
			Err:    err,
		}
	}
	return out.Bytes(), nil
}
