package ports

import (
	"context"
	"io"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// SourcePort abstracts where the stack files are read from (local disk, a
// synced git clone, the GitHub contents API).
type SourcePort interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// DescriptorCodecPort abstracts the stack descriptor wire format.
type DescriptorCodecPort interface {
	Decode(data []byte) (domain.Descriptor, error)
	Encode(d domain.Descriptor) ([]byte, error)
}

// SchemaPort validates a raw descriptor document against a schema.
type SchemaPort interface {
	Check(raw []byte) error
}

// ValuesRendererPort turns a chart entry into its final values tree,
// expanding tplValues templates. globals are the descriptor's top-level keys
// other than repositories and charts; templates see them under .Values.
type ValuesRendererPort interface {
	RenderValues(entry domain.ChartEntry, globals map[string]any) (map[string]any, error)
}

// ManifestRendererPort renders the full kubernetes manifests of a chart.
type ManifestRendererPort interface {
	Template(ctx context.Context, chart domain.RenderedChart) ([]byte, error)
}

// RepositoryPort manages helm chart repositories.
type RepositoryPort interface {
	AddRepository(ctx context.Context, repo domain.Repository) error
	UpdateRepositories(ctx context.Context) error
	ListRepositories(ctx context.Context) ([]domain.Repository, error)
}

// ReleasePort manages installed helm releases.
type ReleasePort interface {
	ListReleases(ctx context.Context) ([]domain.Release, error)
	// GetValues returns the user-supplied values of a release, or the
	// computed values when all is true. A missing release yields a
	// domain.NotFoundError.
	GetValues(ctx context.Context, release, namespace string, all bool) (map[string]any, error)
	Install(ctx context.Context, req domain.InstallRequest) error
	Rollback(ctx context.Context, release, namespace string, revision int) error
	Uninstall(ctx context.Context, release, namespace string) error
}

// NamespacePort manages kubernetes namespaces.
type NamespacePort interface {
	ListNamespaces(ctx context.Context) ([]domain.Namespace, error)
	// GetNamespace returns a domain.NotFoundError when absent.
	GetNamespace(ctx context.Context, name string) (domain.Namespace, error)
	CreateNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
}

// LockPort serialises mutating runs across processes.
type LockPort interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// DiffPort abstracts diff computation.
type DiffPort interface {
	ComputeDiff(baseName, headName string, base, head []byte) string
}

// RequirementsParserPort parses a python dependency file.
type RequirementsParserPort interface {
	Parse(r io.Reader) (domain.Requirements, error)
}

// TestEnvParserPort parses a test environment descriptor located in dir.
type TestEnvParserPort interface {
	Parse(data []byte, dir string) (domain.TestEnv, error)
}

// CommandRunnerPort runs external processes, streaming their output.
type CommandRunnerPort interface {
	Run(ctx context.Context, cmd domain.Command) error
}
