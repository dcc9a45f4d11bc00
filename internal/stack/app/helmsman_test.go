package app

import (
	"context"
	"reflect"
	"testing"

	"github.com/nathantilsley/chart-stack/internal/platform/logger"
	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

func TestRepositoryService(t *testing.T) {
	repos := &mockRepos{repos: []domain.Repository{{Name: "cloudve", URL: "https://example.com/charts"}}}
	svc := NewRepositoryService(repos, logger.New("error"))
	ctx := context.Background()

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}

	if err := svc.Add(ctx, "jupyterhub", "https://jupyterhub.github.io/helm-chart/"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := svc.Add(ctx, "bad", "ftp://example.com"); !domain.IsValidation(err) {
		t.Errorf("Add(ftp) error = %v, want ValidationError", err)
	}
	if err := svc.Add(ctx, "", "https://example.com"); !domain.IsValidation(err) {
		t.Errorf("Add(no name) error = %v, want ValidationError", err)
	}
	if len(repos.added) != 1 || repos.added[0].Name != "jupyterhub" {
		t.Errorf("added = %+v", repos.added)
	}

	if err := svc.Update(ctx); err != nil || repos.updates != 1 {
		t.Errorf("Update() error = %v, updates = %d", err, repos.updates)
	}
}

func newChartService(releases *mockReleases) (*ChartService, *mockRepos) {
	repos := &mockRepos{}
	return NewChartService(repos, releases, "cloudve", logger.New("error")), repos
}

func TestChartService_Get(t *testing.T) {
	releases := &mockReleases{
		releases:  []domain.Release{installed("galaxy", "galaxy", "default", "3.1.0")},
		allValues: map[string]map[string]any{"galaxy": {"ingress": map[string]any{"path": "/galaxy"}}},
	}
	svc, _ := newChartService(releases)

	rel, err := svc.Get(context.Background(), "galaxy")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rel.DisplayName() != "Galaxy" || rel.AccessAddress() != "/galaxy/" {
		t.Errorf("DisplayName() = %q, AccessAddress() = %q", rel.DisplayName(), rel.AccessAddress())
	}
	if !reflect.DeepEqual(rel.Values, releases.allValues["galaxy"]) {
		t.Errorf("Values = %v", rel.Values)
	}

	if _, err := svc.Get(context.Background(), "jupyter"); !domain.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want NotFoundError", err)
	}
}

func TestChartService_Create(t *testing.T) {
	tests := []struct {
		name        string
		existing    []domain.Release
		req         domain.InstallRequest
		wantRelease string
		wantErr     func(error) bool
	}{
		{
			name:        "fresh install defaults the release name",
			req:         domain.InstallRequest{Chart: "cloudve/galaxy", Namespace: "default"},
			wantRelease: "galaxy",
		},
		{
			name:        "same chart in another namespace",
			existing:    []domain.Release{installed("galaxy", "galaxy", "default", "3.1.0")},
			req:         domain.InstallRequest{Chart: "cloudve/galaxy", Namespace: "gvl", ReleaseName: "galaxy-gvl"},
			wantRelease: "galaxy-gvl",
		},
		{
			name:     "already installed in namespace",
			existing: []domain.Release{installed("gxy", "galaxy", "default", "3.1.0")},
			req:      domain.InstallRequest{Chart: "cloudve/galaxy", Namespace: "default"},
			wantErr:  domain.IsExists,
		},
		{
			name:    "chart without repository",
			req:     domain.InstallRequest{Chart: "galaxy", Namespace: "default"},
			wantErr: domain.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releases := &mockReleases{releases: tt.existing, installAdds: true}
			svc, repos := newChartService(releases)

			rel, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("Create() error = %v", err)
				}
				if len(releases.installs) != 0 {
					t.Error("nothing should be installed on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if rel.ID != tt.wantRelease || rel.Namespace != tt.req.Namespace {
				t.Errorf("Create() = %+v", rel)
			}
			if repos.updates != 1 {
				t.Errorf("repositories refreshed %d times, want 1", repos.updates)
			}
		})
	}
}

func TestChartService_Update(t *testing.T) {
	releases := &mockReleases{
		releases: []domain.Release{installed("galaxy", "galaxy", "default", "3.1.0")},
		userValues: map[string]map[string]any{"galaxy": {
			"ingress": map[string]any{"path": "/galaxy", "enabled": true},
		}},
		allValues: map[string]map[string]any{"galaxy": {
			"ingress":     map[string]any{"path": "/galaxy", "enabled": true},
			"persistence": map[string]any{"size": "10Gi"},
		}},
	}
	svc, _ := newChartService(releases)

	rel, err := svc.Update(context.Background(), "galaxy", map[string]any{
		"ingress": map[string]any{"path": "/gxy"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	req := releases.installs[0]
	if req.Chart != "cloudve/galaxy" || !req.ReuseValues || req.Namespace != "default" {
		t.Errorf("install request = %+v", req)
	}
	wantSent := map[string]any{"ingress": map[string]any{"path": "/gxy", "enabled": true}}
	if !reflect.DeepEqual(req.Values, wantSent) {
		t.Errorf("sent values = %v, want %v", req.Values, wantSent)
	}
	wantValues := map[string]any{
		"ingress":     map[string]any{"path": "/gxy", "enabled": true},
		"persistence": map[string]any{"size": "10Gi"},
	}
	if !reflect.DeepEqual(rel.Values, wantValues) {
		t.Errorf("returned values = %v, want %v", rel.Values, wantValues)
	}
}

func TestChartService_RollbackAndDelete(t *testing.T) {
	releases := &mockReleases{releases: []domain.Release{installed("galaxy", "galaxy", "default", "3.1.0")}}
	svc, _ := newChartService(releases)
	ctx := context.Background()

	if _, err := svc.Rollback(ctx, "galaxy", 0); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if want := []rollbackCall{{"galaxy", "default", 0}}; !reflect.DeepEqual(releases.rollbacks, want) {
		t.Errorf("rollbacks = %+v, want %+v", releases.rollbacks, want)
	}
	if _, err := svc.Rollback(ctx, "galaxy", -1); !domain.IsValidation(err) {
		t.Errorf("Rollback(-1) error = %v, want ValidationError", err)
	}
	if _, err := svc.Rollback(ctx, "jupyter", 2); !domain.IsNotFound(err) {
		t.Errorf("Rollback(missing) error = %v, want NotFoundError", err)
	}

	if err := svc.Delete(ctx, "galaxy"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !reflect.DeepEqual(releases.uninstalled, []string{"galaxy"}) {
		t.Errorf("uninstalled = %v", releases.uninstalled)
	}
	if err := svc.Delete(ctx, "jupyter"); !domain.IsNotFound(err) {
		t.Errorf("Delete(missing) error = %v, want NotFoundError", err)
	}
}

func TestNamespaceService(t *testing.T) {
	namespaces := &mockNamespaces{existing: map[string]bool{"default": true}}
	svc := NewNamespaceService(namespaces, logger.New("error"))
	ctx := context.Background()

	ns, err := svc.Create(ctx, "gvl")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ns.Name != "gvl" || ns.Status != "Active" {
		t.Errorf("Create() = %+v", ns)
	}
	if _, err := svc.Create(ctx, "default"); !domain.IsExists(err) {
		t.Errorf("Create(existing) error = %v, want ExistsError", err)
	}
	if _, err := svc.Create(ctx, ""); !domain.IsValidation(err) {
		t.Errorf("Create(empty) error = %v, want ValidationError", err)
	}

	if err := svc.Delete(ctx, "gvl"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, "gvl"); !domain.IsNotFound(err) {
		t.Errorf("Delete(missing) error = %v, want NotFoundError", err)
	}
	if _, err := svc.Get(ctx, "gvl"); !domain.IsNotFound(err) {
		t.Errorf("Get(deleted) error = %v, want NotFoundError", err)
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("List() = %v, %v", list, err)
	}
}
