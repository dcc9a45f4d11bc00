package helmcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Runner executes a helm command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, args ...string) ([]byte, error)
}

// Adapter implements ports.RepositoryPort, ports.ReleasePort and
// ports.ManifestRendererPort by shelling out to the helm CLI.
type Adapter struct {
	runner Runner
	logger *slog.Logger
}

// New creates a new Helm CLI adapter. It verifies that the helm binary is
// available at construction time.
func New(helmBin string, logger *slog.Logger) (*Adapter, error) {
	if helmBin == "" {
		helmBin = "helm"
	}
	path, err := exec.LookPath(helmBin)
	if err != nil {
		return nil, fmt.Errorf("helm binary not found: %w", err)
	}
	return NewWithRunner(&execRunner{helmBin: path, logger: logger}, logger), nil
}

// NewWithRunner creates an adapter around a custom runner.
func NewWithRunner(runner Runner, logger *slog.Logger) *Adapter {
	return &Adapter{runner: runner, logger: logger}
}

// AddRepository runs `helm repo add --force-update`.
func (a *Adapter) AddRepository(ctx context.Context, repo domain.Repository) error {
	a.logger.Info("adding helm repository", "name", repo.Name, "url", repo.URL)
	if _, err := a.runner.Run(ctx, nil, "repo", "add", "--force-update", repo.Name, repo.URL); err != nil {
		return fmt.Errorf("adding repository %s: %w", repo.Name, err)
	}
	return nil
}

// UpdateRepositories refreshes the local index of every repository.
func (a *Adapter) UpdateRepositories(ctx context.Context) error {
	if _, err := a.runner.Run(ctx, nil, "repo", "update"); err != nil {
		return fmt.Errorf("updating repositories: %w", err)
	}
	return nil
}

type repoJSON struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListRepositories returns the configured repositories. helm exits non-zero
// when none are configured; that is reported as an empty list.
func (a *Adapter) ListRepositories(ctx context.Context) ([]domain.Repository, error) {
	out, err := a.runner.Run(ctx, nil, "repo", "list", "-o", "json")
	if err != nil {
		if strings.Contains(err.Error(), "no repositories") {
			return nil, nil
		}
		return nil, fmt.Errorf("listing repositories: %w", err)
	}

	var items []repoJSON
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("parsing repository list: %w", err)
	}
	repos := make([]domain.Repository, 0, len(items))
	for _, it := range items {
		repos = append(repos, domain.Repository{Name: it.Name, URL: it.URL})
	}
	return repos, nil
}

type releaseJSON struct {
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	Revision   string `json:"revision"`
	Updated    string `json:"updated"`
	Status     string `json:"status"`
	Chart      string `json:"chart"`
	AppVersion string `json:"app_version"`
}

// ListReleases returns every release in every namespace.
func (a *Adapter) ListReleases(ctx context.Context) ([]domain.Release, error) {
	out, err := a.runner.Run(ctx, nil, "list", "--all-namespaces", "--all", "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}

	var items []releaseJSON
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("parsing release list: %w", err)
	}

	releases := make([]domain.Release, 0, len(items))
	for _, it := range items {
		name, version := domain.ParseChartRef(it.Chart)
		revision, _ := strconv.Atoi(it.Revision)
		releases = append(releases, domain.Release{
			ID:           it.Name,
			Name:         name,
			Namespace:    it.Namespace,
			ChartVersion: version,
			Revision:     revision,
			AppVersion:   it.AppVersion,
			State:        it.Status,
			Updated:      it.Updated,
		})
	}
	return releases, nil
}

// GetValues returns the user-supplied values of a release, or every computed
// value when all is set.
func (a *Adapter) GetValues(ctx context.Context, release, namespace string, all bool) (map[string]any, error) {
	args := []string{"get", "values", release, "-o", "json"}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}
	if all {
		args = append(args, "--all")
	}

	out, err := a.runner.Run(ctx, nil, args...)
	if err != nil {
		if strings.Contains(err.Error(), "release: not found") {
			return nil, domain.NewNotFoundError("release", release)
		}
		return nil, fmt.Errorf("getting values of %s: %w", release, err)
	}

	values := map[string]any{}
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return values, nil
	}
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, fmt.Errorf("parsing values of %s: %w", release, err)
	}
	return values, nil
}

// Install runs `helm upgrade --install`, passing the values on stdin.
func (a *Adapter) Install(ctx context.Context, req domain.InstallRequest) error {
	args := []string{"upgrade", "--install", req.ReleaseName, req.Chart}
	if req.Namespace != "" {
		args = append(args, "--namespace", req.Namespace)
	}
	if req.Version != "" {
		args = append(args, "--version", req.Version)
	}
	if req.ReuseValues {
		args = append(args, "--reuse-values")
	}

	var stdin []byte
	if len(req.Values) > 0 {
		data, err := yaml.Marshal(req.Values)
		if err != nil {
			return fmt.Errorf("encoding values for %s: %w", req.ReleaseName, err)
		}
		stdin = data
		args = append(args, "--values", "-")
	}

	a.logger.Info("installing release",
		"release", req.ReleaseName,
		"chart", req.Chart,
		"namespace", req.Namespace,
		"version", req.Version,
	)
	if _, err := a.runner.Run(ctx, stdin, args...); err != nil {
		return fmt.Errorf("installing %s: %w", req.ReleaseName, err)
	}
	return nil
}

// Rollback rolls a release back to revision, or to the previous one when
// revision is 0.
func (a *Adapter) Rollback(ctx context.Context, release, namespace string, revision int) error {
	args := []string{"rollback", release}
	if revision > 0 {
		args = append(args, strconv.Itoa(revision))
	}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}
	if _, err := a.runner.Run(ctx, nil, args...); err != nil {
		return fmt.Errorf("rolling back %s: %w", release, err)
	}
	return nil
}

// Uninstall removes a release.
func (a *Adapter) Uninstall(ctx context.Context, release, namespace string) error {
	args := []string{"uninstall", release}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}
	if _, err := a.runner.Run(ctx, nil, args...); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return domain.NewNotFoundError("release", release)
		}
		return fmt.Errorf("uninstalling %s: %w", release, err)
	}
	return nil
}

// Template runs `helm template` for a rendered chart and returns the
// manifests.
func (a *Adapter) Template(ctx context.Context, chart domain.RenderedChart) ([]byte, error) {
	entry := chart.Entry
	args := []string{"template", entry.Release(), entry.Name}
	if entry.Namespace != "" {
		args = append(args, "--namespace", entry.Namespace)
	}
	if entry.Version != "" {
		args = append(args, "--version", entry.Version)
	}

	var stdin []byte
	if len(chart.YAML) > 0 {
		stdin = chart.YAML
		args = append(args, "--values", "-")
	}

	out, err := a.runner.Run(ctx, stdin, args...)
	if err != nil {
		return nil, fmt.Errorf("templating %s: %w", entry.Key, err)
	}
	return out, nil
}

// execRunner runs the real helm binary.
type execRunner struct {
	helmBin string
	logger  *slog.Logger
}

func (r *execRunner) Run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	r.logger.Debug("running helm", "args", args)

	//nolint:gosec // G204: args are built by this package, not taken from user input
	cmd := exec.CommandContext(ctx, r.helmBin, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		r.logger.Error("helm command failed", "args", args, "error", err, "stderr", msg)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && msg != "" {
			return nil, fmt.Errorf("helm %s: %s", args[0], msg)
		}
		return nil, fmt.Errorf("helm %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}
