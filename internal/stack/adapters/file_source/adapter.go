// Package filesource reads stack files from a directory on local disk.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Adapter implements ports.SourcePort. Paths are resolved inside root;
// symlinks and ".." components cannot escape it.
type Adapter struct {
	root string
}

// New creates a file source rooted at dir.
func New(dir string) *Adapter {
	return &Adapter{root: dir}
}

// ReadFile reads path relative to the root.
func (a *Adapter) ReadFile(_ context.Context, path string) ([]byte, error) {
	full, err := securejoin.SecureJoin(a.root, path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewNotFoundError("file", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
