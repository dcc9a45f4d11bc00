package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

// RepositoryService implements ports.RepositoryUseCase.
type RepositoryService struct {
	repos  ports.RepositoryPort
	logger *slog.Logger
}

// NewRepositoryService creates a RepositoryService.
func NewRepositoryService(repos ports.RepositoryPort, logger *slog.Logger) *RepositoryService {
	return &RepositoryService{repos: repos, logger: logger}
}

func (s *RepositoryService) List(ctx context.Context) ([]domain.Repository, error) {
	return s.repos.ListRepositories(ctx)
}

// Add registers a repository after checking its name and url.
func (s *RepositoryService) Add(ctx context.Context, name, url string) error {
	repo := domain.Repository{Name: name, URL: url}
	if err := (domain.Descriptor{Repositories: []domain.Repository{repo}}).Validate(); err != nil {
		return err
	}
	return s.repos.AddRepository(ctx, repo)
}

func (s *RepositoryService) Update(ctx context.Context) error {
	return s.repos.UpdateRepositories(ctx)
}

// ChartService implements ports.ChartUseCase over installed releases. A
// chart's id is its release name.
type ChartService struct {
	repos       ports.RepositoryPort
	releases    ports.ReleasePort
	defaultRepo string
	logger      *slog.Logger
}

// NewChartService creates a ChartService. defaultRepo is the repository
// alias used to resolve a release's chart on update.
func NewChartService(repos ports.RepositoryPort, releases ports.ReleasePort, defaultRepo string, logger *slog.Logger) *ChartService {
	return &ChartService{repos: repos, releases: releases, defaultRepo: defaultRepo, logger: logger}
}

// List returns every installed chart. Values are only filled in by Get.
func (s *ChartService) List(ctx context.Context) ([]domain.Release, error) {
	return s.releases.ListReleases(ctx)
}

// Get returns a chart together with all of its computed values.
func (s *ChartService) Get(ctx context.Context, id string) (domain.Release, error) {
	rel, err := s.find(ctx, func(r domain.Release) bool { return r.ID == id })
	if err != nil {
		return domain.Release{}, err
	}
	if rel.ID == "" {
		return domain.Release{}, domain.NewNotFoundError("chart", id)
	}
	values, err := s.releases.GetValues(ctx, rel.ID, rel.Namespace, true)
	if err != nil {
		return domain.Release{}, err
	}
	rel.Values = values
	return rel, nil
}

// Create installs a chart. A chart of the same name already installed in the
// namespace is an ExistsError. Repositories are refreshed first.
func (s *ChartService) Create(ctx context.Context, req domain.InstallRequest) (domain.Release, error) {
	entry := domain.ChartEntry{Name: req.Chart}
	chartName := entry.ChartName()
	if entry.RepoAlias() == "" || chartName == "" {
		return domain.Release{}, &domain.ValidationError{
			Subject: "chart request",
			Err:     fmt.Errorf("chart %q must have the form <repository>/<chart>", req.Chart),
		}
	}

	existing, err := s.find(ctx, func(r domain.Release) bool {
		return r.Name == chartName && r.Namespace == req.Namespace
	})
	if err != nil {
		return domain.Release{}, err
	}
	if existing.ID != "" {
		return domain.Release{}, &domain.ExistsError{
			Kind:   "chart",
			Name:   req.Chart,
			Detail: fmt.Sprintf("installed in namespace %s as %s", req.Namespace, existing.ID),
		}
	}

	if err := s.repos.UpdateRepositories(ctx); err != nil {
		return domain.Release{}, err
	}
	if req.ReleaseName == "" {
		req.ReleaseName = chartName
	}
	if err := s.releases.Install(ctx, req); err != nil {
		return domain.Release{}, err
	}
	s.logger.Info("chart installed", "chart", req.Chart, "release", req.ReleaseName, "namespace", req.Namespace)

	created, err := s.find(ctx, func(r domain.Release) bool {
		return r.Name == chartName && r.Namespace == req.Namespace
	})
	if err != nil {
		return domain.Release{}, err
	}
	if created.ID == "" {
		return domain.Release{}, domain.NewNotFoundError("chart", req.ReleaseName)
	}
	return created, nil
}

// Update deep-merges values over the chart's current user values and
// upgrades the release reusing the remaining ones. The returned chart
// carries its previous computed values with the merge applied.
func (s *ChartService) Update(ctx context.Context, id string, values map[string]any) (domain.Release, error) {
	rel, err := s.Get(ctx, id)
	if err != nil {
		return domain.Release{}, err
	}

	current, err := s.releases.GetValues(ctx, rel.ID, rel.Namespace, false)
	if err != nil {
		return domain.Release{}, err
	}
	merged, err := domain.MergeValues(current, values)
	if err != nil {
		return domain.Release{}, err
	}

	err = s.releases.Install(ctx, domain.InstallRequest{
		ReleaseName: rel.ID,
		Chart:       s.defaultRepo + "/" + rel.Name,
		Namespace:   rel.Namespace,
		Values:      merged,
		ReuseValues: true,
	})
	if err != nil {
		return domain.Release{}, err
	}
	s.logger.Info("chart updated", "release", rel.ID, "namespace", rel.Namespace)

	if rel.Values, err = domain.MergeValues(rel.Values, merged); err != nil {
		return domain.Release{}, err
	}
	return rel, nil
}

// Rollback rolls the chart back to revision, or the previous one when
// revision is 0.
func (s *ChartService) Rollback(ctx context.Context, id string, revision int) (domain.Release, error) {
	if revision < 0 {
		return domain.Release{}, &domain.ValidationError{
			Subject: "rollback request",
			Err:     fmt.Errorf("revision %d is negative", revision),
		}
	}
	rel, err := s.find(ctx, func(r domain.Release) bool { return r.ID == id })
	if err != nil {
		return domain.Release{}, err
	}
	if rel.ID == "" {
		return domain.Release{}, domain.NewNotFoundError("chart", id)
	}
	if err := s.releases.Rollback(ctx, rel.ID, rel.Namespace, revision); err != nil {
		return domain.Release{}, err
	}
	s.logger.Info("chart rolled back", "release", rel.ID, "revision", revision)
	return s.Get(ctx, id)
}

func (s *ChartService) Delete(ctx context.Context, id string) error {
	rel, err := s.find(ctx, func(r domain.Release) bool { return r.ID == id })
	if err != nil {
		return err
	}
	if rel.ID == "" {
		return domain.NewNotFoundError("chart", id)
	}
	return s.releases.Uninstall(ctx, rel.ID, rel.Namespace)
}

// find returns the first release matching, or a zero Release.
func (s *ChartService) find(ctx context.Context, match func(domain.Release) bool) (domain.Release, error) {
	releases, err := s.releases.ListReleases(ctx)
	if err != nil {
		return domain.Release{}, err
	}
	for _, r := range releases {
		if match(r) {
			return r, nil
		}
	}
	return domain.Release{}, nil
}

// NamespaceService implements ports.NamespaceUseCase.
type NamespaceService struct {
	namespaces ports.NamespacePort
	logger     *slog.Logger
}

// NewNamespaceService creates a NamespaceService.
func NewNamespaceService(namespaces ports.NamespacePort, logger *slog.Logger) *NamespaceService {
	return &NamespaceService{namespaces: namespaces, logger: logger}
}

func (s *NamespaceService) List(ctx context.Context) ([]domain.Namespace, error) {
	return s.namespaces.ListNamespaces(ctx)
}

func (s *NamespaceService) Get(ctx context.Context, name string) (domain.Namespace, error) {
	return s.namespaces.GetNamespace(ctx, name)
}

// Create creates a namespace; an existing one is an ExistsError.
func (s *NamespaceService) Create(ctx context.Context, name string) (domain.Namespace, error) {
	if name == "" {
		return domain.Namespace{}, &domain.ValidationError{Subject: "namespace", Err: fmt.Errorf("name is empty")}
	}
	if err := s.namespaces.CreateNamespace(ctx, name); err != nil {
		return domain.Namespace{}, err
	}
	s.logger.Info("namespace created", "namespace", name)
	return s.namespaces.GetNamespace(ctx, name)
}

// Delete removes a namespace; a missing one is a NotFoundError.
func (s *NamespaceService) Delete(ctx context.Context, name string) error {
	if err := s.namespaces.DeleteNamespace(ctx, name); err != nil {
		return err
	}
	s.logger.Info("namespace deleted", "namespace", name)
	return nil
}
