// Package gitrepo manages a local git clone's lifecycle: clone, pull, and periodic background sync.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/vcs"
)

// SyncFunc is invoked after a sync that moved the checkout to a new revision.
type SyncFunc func(ctx context.Context, revision string)

// GitRepo owns the clone/pull/sync lifecycle for a single git repository.
type GitRepo struct {
	repo         *vcs.GitRepo
	ref          string
	syncInterval time.Duration
	logger       *slog.Logger

	ready    atomic.Bool
	revision atomic.Value // string
	stopCh   chan struct{}
	stopOnce sync.Once
	onSync   []SyncFunc
	mu       sync.Mutex // serializes pull + callbacks
}

// New creates a GitRepo tracking ref (the default branch when empty). No I/O
// is performed; call Start to clone/pull.
func New(repoURL, localPath, ref string, syncInterval time.Duration, logger *slog.Logger) (*GitRepo, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	repo, err := vcs.NewGitRepo(repoURL, localPath)
	if err != nil {
		return nil, fmt.Errorf("preparing git repo %s: %w", repoURL, err)
	}
	g := &GitRepo{
		repo:         repo,
		ref:          ref,
		syncInterval: syncInterval,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
	g.revision.Store("")
	return g, nil
}

// OnSync registers a callback invoked (under mu) when a sync lands on a new revision.
func (r *GitRepo) OnSync(fn SyncFunc) {
	r.onSync = append(r.onSync, fn)
}

// Start performs the initial clone (or pull if already cloned), invokes OnSync
// callbacks, marks the repo as ready, and starts the background sync goroutine.
func (r *GitRepo) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initRepo(); err != nil {
		return fmt.Errorf("initializing repo: %w", err)
	}
	rev, err := r.repo.Version()
	if err != nil {
		return fmt.Errorf("reading revision: %w", err)
	}
	r.revision.Store(rev)

	r.runCallbacks(ctx, rev)
	r.ready.Store(true)

	if r.syncInterval > 0 {
		go r.syncLoop(ctx)
	}
	r.logger.Info("gitrepo started", "repoURL", r.repo.Remote(), "revision", rev, "syncInterval", r.syncInterval)
	return nil
}

// Ready returns true after Start completes the initial clone and first callback cycle.
func (r *GitRepo) Ready() bool {
	return r.ready.Load()
}

// Path returns the local filesystem path of the cloned repository.
func (r *GitRepo) Path() string {
	return r.repo.LocalPath()
}

// Revision returns the commit currently checked out.
func (r *GitRepo) Revision() string {
	return r.revision.Load().(string)
}

// Stop signals the background sync goroutine to exit. It is safe to call more than once.
func (r *GitRepo) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Sync pulls once and runs the callbacks when the revision moved.
func (r *GitRepo) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.Update(); err != nil {
		return fmt.Errorf("git pull failed: %w", err)
	}
	if err := r.checkout(); err != nil {
		return err
	}
	rev, err := r.repo.Version()
	if err != nil {
		return fmt.Errorf("reading revision: %w", err)
	}
	if rev == r.Revision() {
		r.logger.Debug("git repository unchanged", "revision", rev)
		return nil
	}

	r.logger.Info("git repository moved", "from", r.Revision(), "to", rev)
	r.revision.Store(rev)
	r.runCallbacks(ctx, rev)
	return nil
}

// initRepo clones the repository if it doesn't exist, or pulls latest if it does.
func (r *GitRepo) initRepo() error {
	if r.repo.CheckLocal() {
		r.logger.Info("repository already exists, pulling latest")
		if err := r.repo.Update(); err != nil {
			return fmt.Errorf("git pull failed: %w", err)
		}
		return r.checkout()
	}

	r.logger.Info("cloning repository", "repoURL", r.repo.Remote())
	if err := r.repo.Get(); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return r.checkout()
}

func (r *GitRepo) checkout() error {
	if r.ref == "" {
		return nil
	}
	if err := r.repo.UpdateVersion(r.ref); err != nil {
		return fmt.Errorf("checking out %s: %w", r.ref, err)
	}
	return nil
}

// syncLoop periodically pulls and invokes callbacks.
func (r *GitRepo) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.logger.Info("syncing git repository")
			if err := r.Sync(ctx); err != nil {
				r.logger.Error("failed to sync repository", "error", err)
			}
		case <-r.stopCh:
			r.logger.Info("stopping gitrepo sync loop")
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCallbacks invokes all OnSync callbacks sequentially. Must be called under mu.
func (r *GitRepo) runCallbacks(ctx context.Context, rev string) {
	for _, fn := range r.onSync {
		fn(ctx, rev)
	}
}
