// Package filelock serialises mutating runs with an advisory file lock.
package filelock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 250 * time.Millisecond

// Adapter implements ports.LockPort.
type Adapter struct {
	path   string
	logger *slog.Logger
}

// New creates a lock backed by the file at path.
func New(path string, logger *slog.Logger) *Adapter {
	return &Adapter{path: path, logger: logger}
}

// Lock blocks until the lock is held or ctx is done.
func (a *Adapter) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(a.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", a.path, err)
	}
	if !ok {
		a.logger.Info("waiting for lock", "path", a.path)
		ok, err = fl.TryLockContext(ctx, retryDelay)
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", a.path, err)
		}
		if !ok {
			return nil, fmt.Errorf("locking %s: %w", a.path, ctx.Err())
		}
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			a.logger.Error("failed to release lock", "path", a.path, "error", err)
		}
	}, nil
}
