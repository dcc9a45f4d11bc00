package ports

import (
	"context"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// StackUseCase is the driving port for working with the whole stack
// descriptor.
type StackUseCase interface {
	Load(ctx context.Context) (domain.Descriptor, error)
	Validate(ctx context.Context) (domain.ValidationReport, error)
	Render(ctx context.Context, only string) ([]domain.RenderedChart, error)
	Template(ctx context.Context, only string) (map[string][]byte, error)
	Apply(ctx context.Context, opts domain.ApplyOptions) ([]domain.ApplyResult, error)
}

// RepositoryUseCase is the driving port for chart repositories.
type RepositoryUseCase interface {
	List(ctx context.Context) ([]domain.Repository, error)
	Add(ctx context.Context, name, url string) error
	Update(ctx context.Context) error
}

// ChartUseCase is the driving port for installed charts.
type ChartUseCase interface {
	List(ctx context.Context) ([]domain.Release, error)
	Get(ctx context.Context, id string) (domain.Release, error)
	Create(ctx context.Context, req domain.InstallRequest) (domain.Release, error)
	Update(ctx context.Context, id string, values map[string]any) (domain.Release, error)
	Rollback(ctx context.Context, id string, revision int) (domain.Release, error)
	Delete(ctx context.Context, id string) error
}

// NamespaceUseCase is the driving port for kubernetes namespaces.
type NamespaceUseCase interface {
	List(ctx context.Context) ([]domain.Namespace, error)
	Get(ctx context.Context, name string) (domain.Namespace, error)
	Create(ctx context.Context, name string) (domain.Namespace, error)
	Delete(ctx context.Context, name string) error
}

// PackagingUseCase is the driving port for the dependency file and the test
// environment descriptor.
type PackagingUseCase interface {
	CheckRequirements(ctx context.Context) (domain.Requirements, error)
	InstallRequirements(ctx context.Context) error
	LoadTestEnv(ctx context.Context) (domain.TestEnv, error)
	RunTests(ctx context.Context, posargs []string) error
}
