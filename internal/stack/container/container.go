// Package container wires the stack services from configuration. Both the
// REST server and the CLI build on it.
package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	commandrunner "github.com/nathantilsley/chart-stack/internal/stack/adapters/command_runner"
	descriptoryaml "github.com/nathantilsley/chart-stack/internal/stack/adapters/descriptor_yaml"
	dyffdiff "github.com/nathantilsley/chart-stack/internal/stack/adapters/dyff_diff"
	filelock "github.com/nathantilsley/chart-stack/internal/stack/adapters/file_lock"
	filesource "github.com/nathantilsley/chart-stack/internal/stack/adapters/file_source"
	gitsource "github.com/nathantilsley/chart-stack/internal/stack/adapters/git_source"
	githubsource "github.com/nathantilsley/chart-stack/internal/stack/adapters/github_source"
	helmcli "github.com/nathantilsley/chart-stack/internal/stack/adapters/helm_cli"
	k8snamespaces "github.com/nathantilsley/chart-stack/internal/stack/adapters/k8s_namespaces"
	linediff "github.com/nathantilsley/chart-stack/internal/stack/adapters/line_diff"
	requirementsfile "github.com/nathantilsley/chart-stack/internal/stack/adapters/requirements_file"
	schemacheck "github.com/nathantilsley/chart-stack/internal/stack/adapters/schema_check"
	toxini "github.com/nathantilsley/chart-stack/internal/stack/adapters/tox_ini"
	tplvalues "github.com/nathantilsley/chart-stack/internal/stack/adapters/tpl_values"
	"github.com/nathantilsley/chart-stack/internal/platform/config"
	"github.com/nathantilsley/chart-stack/internal/platform/gitrepo"
	ghclient "github.com/nathantilsley/chart-stack/internal/platform/github"
	"github.com/nathantilsley/chart-stack/internal/platform/telemetry"
	"github.com/nathantilsley/chart-stack/internal/stack/app"
	"github.com/nathantilsley/chart-stack/internal/stack/domain"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

const diffContextLines = 3

// Options tunes process-specific wiring.
type Options struct {
	// Stdout and Stderr receive the output of pip and the test commands.
	Stdout io.Writer
	Stderr io.Writer
}

// Container holds all application dependencies.
type Container struct {
	Config    config.Config
	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry

	// Repo is the synced clone when the git source is configured.
	Repo *gitrepo.GitRepo
	// SourceRoot is the local directory packaging commands run in.
	SourceRoot string

	Stack      *app.StackService
	Repos      *app.RepositoryService
	Charts     *app.ChartService
	Namespaces *app.NamespaceService
	Packaging  *app.PackagingService
}

// New builds and wires all dependencies. Nothing is cloned or contacted
// until Start or the first use case call.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*Container, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	tel, err := telemetry.New(ctx, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	c := &Container{Config: cfg, Logger: log, Telemetry: tel}

	source, err := c.newSource()
	if err != nil {
		return nil, err
	}

	schema, err := schemacheck.New()
	if err != nil {
		return nil, fmt.Errorf("compiling descriptor schema: %w", err)
	}

	helm := newHelm(cfg.HelmBin, log)
	namespaces := newNamespaces(cfg.Kubeconfig, log)

	c.Stack = app.NewStackService(app.StackDeps{
		Source:     source,
		StackPath:  cfg.StackFile,
		Codec:      descriptoryaml.New(),
		Schema:     schema,
		Values:     tplvalues.New(),
		Manifests:  helm,
		Repos:      helm,
		Releases:   helm,
		Namespaces: namespaces,
		Lock:       filelock.New(cfg.LockFile, log),
		Diff:       dyffdiff.New(linediff.New(diffContextLines)),
	}, log, tel.Meter, tel.Tracer)

	c.Repos = app.NewRepositoryService(helm, log)
	c.Charts = app.NewChartService(helm, helm, cfg.DefaultRepo, log)
	c.Namespaces = app.NewNamespaceService(namespaces, log)

	c.Packaging = app.NewPackagingService(app.PackagingDeps{
		Source:           source,
		RequirementsPath: cfg.RequirementsFile,
		TestEnvPath:      cfg.TestEnvFile,
		BaseDir:          c.SourceRoot,
		Requirements:     requirementsfile.New(),
		TestEnv:          toxini.New(cfg.PythonBin),
		Runner:           commandrunner.New(opts.Stdout, opts.Stderr, log),
		Pip:              cfg.PipBin,
	}, log)

	return c, nil
}

func (c *Container) newSource() (ports.SourcePort, error) {
	cfg := c.Config
	switch cfg.Source() {
	case "git":
		repo, err := gitrepo.New(cfg.GitRepo, cfg.GitLocalPath, cfg.GitRef, cfg.GitSyncInterval, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating git source: %w", err)
		}
		c.Repo = repo
		c.SourceRoot = repo.Path()
		c.Logger.Info("reading stack from git",
			"repo", cfg.GitRepo,
			"ref", cfg.GitRef,
			"syncInterval", cfg.GitSyncInterval,
		)
		return gitsource.New(repo), nil

	case "github":
		client, err := ghclient.NewClient(ghclient.Credentials{
			Token:          cfg.GitHubToken,
			AppID:          cfg.GitHubAppID,
			InstallationID: cfg.GitHubInstallationID,
			PrivateKeyPEM:  cfg.GitHubPrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		src, err := githubsource.New(client, cfg.GitHubRepo, cfg.GitHubRef)
		if err != nil {
			return nil, fmt.Errorf("creating github source: %w", err)
		}
		c.SourceRoot = absOrSelf(cfg.BaseDir)
		c.Logger.Info("reading stack from github", "repo", cfg.GitHubRepo, "ref", cfg.GitHubRef)
		return src, nil

	default:
		c.SourceRoot = absOrSelf(cfg.BaseDir)
		c.Logger.Debug("reading stack from disk", "dir", c.SourceRoot)
		return filesource.New(c.SourceRoot), nil
	}
}

// Start clones the git source when configured. With auto-apply on, every
// new revision is applied.
func (c *Container) Start(ctx context.Context) error {
	if c.Repo == nil {
		return nil
	}
	if c.Config.AutoApply {
		c.Repo.OnSync(c.applyRevision)
	}
	return c.Repo.Start(ctx)
}

func (c *Container) applyRevision(ctx context.Context, revision string) {
	log := c.Logger.With("revision", revision)
	results, err := c.Stack.Apply(ctx, domain.ApplyOptions{})
	if err != nil {
		log.Error("auto-apply failed", "error", err)
		return
	}
	unchanged, changed, failed := domain.CountByStatus(results)
	log.Info("auto-apply finished", "unchanged", unchanged, "changed", changed, "errors", failed)
}

// Close stops background sync and flushes telemetry.
func (c *Container) Close(ctx context.Context) error {
	if c.Repo != nil {
		c.Repo.Stop()
	}
	return c.Telemetry.Shutdown(ctx)
}

func absOrSelf(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// newHelm returns the helm adapter, or one whose every call reports the
// missing binary so commands that never reach helm still work.
func newHelm(bin string, log *slog.Logger) *helmcli.Adapter {
	helm, err := helmcli.New(bin, log)
	if err != nil {
		log.Debug("helm unavailable", "error", err)
		return helmcli.NewWithRunner(failingRunner{err: err}, log)
	}
	return helm
}

type failingRunner struct{ err error }

func (r failingRunner) Run(context.Context, []byte, ...string) ([]byte, error) {
	return nil, r.err
}

// newNamespaces returns the kubernetes adapter, deferring a missing cluster
// configuration to the first call.
func newNamespaces(kubeconfig string, log *slog.Logger) ports.NamespacePort {
	ns, err := k8snamespaces.New(kubeconfig)
	if err != nil {
		log.Debug("kubernetes unavailable", "error", err)
		return unavailableNamespaces{err: err}
	}
	return ns
}

type unavailableNamespaces struct{ err error }

func (u unavailableNamespaces) ListNamespaces(context.Context) ([]domain.Namespace, error) {
	return nil, u.err
}

func (u unavailableNamespaces) GetNamespace(context.Context, string) (domain.Namespace, error) {
	return domain.Namespace{}, u.err
}

func (u unavailableNamespaces) CreateNamespace(context.Context, string) error {
	return u.err
}

func (u unavailableNamespaces) DeleteNamespace(context.Context, string) error {
	return u.err
}
