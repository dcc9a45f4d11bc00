// Package gitsource reads stack files from a synced git clone.
package gitsource

import (
	"context"
	"errors"

	filesource "github.com/nathantilsley/chart-stack/internal/stack/adapters/file_source"
)

// ErrNotReady is returned before the initial clone has finished.
var ErrNotReady = errors.New("git repository not ready")

// Clone is the part of gitrepo.GitRepo the source needs.
type Clone interface {
	Path() string
	Ready() bool
}

// Adapter implements ports.SourcePort on top of a local clone.
type Adapter struct {
	clone Clone
	files *filesource.Adapter
}

// New creates a git source.
func New(clone Clone) *Adapter {
	return &Adapter{clone: clone, files: filesource.New(clone.Path())}
}

// ReadFile reads path from the working tree of the clone.
func (a *Adapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if !a.clone.Ready() {
		return nil, ErrNotReady
	}
	return a.files.ReadFile(ctx, path)
}
