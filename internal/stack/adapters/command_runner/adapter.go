// Package commandrunner runs external processes for the packaging workflow.
package commandrunner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Adapter implements ports.CommandRunnerPort, streaming output to the
// configured writers.
type Adapter struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// New creates a runner. Nil writers default to the process's own streams.
func New(stdout, stderr io.Writer, logger *slog.Logger) *Adapter {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Adapter{stdout: stdout, stderr: stderr, logger: logger}
}

// Run executes cmd and waits for it.
func (a *Adapter) Run(ctx context.Context, cmd domain.Command) error {
	a.logger.Info("running command", "command", cmd.String(), "dir", cmd.Dir)

	//nolint:gosec // G204: commands come from the operator's own tox.ini and requirements file
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdout = a.stdout
	c.Stderr = a.stderr

	if err := c.Run(); err != nil {
		return fmt.Errorf("running %q: %w", cmd.String(), err)
	}
	return nil
}
