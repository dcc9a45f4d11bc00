package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStack struct {
	report   domain.ValidationReport
	rendered []domain.RenderedChart
	results  []domain.ApplyResult
	opts     domain.ApplyOptions
}

func (f *fakeStack) Load(context.Context) (domain.Descriptor, error) {
	return f.report.Descriptor, nil
}

func (f *fakeStack) Validate(context.Context) (domain.ValidationReport, error) {
	return f.report, nil
}

func (f *fakeStack) Render(context.Context, string) ([]domain.RenderedChart, error) {
	return f.rendered, nil
}

func (f *fakeStack) Template(context.Context, string) (map[string][]byte, error) {
	return map[string][]byte{"galaxy": []byte("kind: Deployment\n")}, nil
}

func (f *fakeStack) Apply(_ context.Context, opts domain.ApplyOptions) ([]domain.ApplyResult, error) {
	f.opts = opts
	return f.results, nil
}

type fakeRepos struct{ added []string }

func (f *fakeRepos) List(context.Context) ([]domain.Repository, error) {
	return []domain.Repository{{Name: "cloudve", URL: "https://example.com/charts"}}, nil
}

func (f *fakeRepos) Add(_ context.Context, name, _ string) error {
	f.added = append(f.added, name)
	return nil
}

func (f *fakeRepos) Update(context.Context) error { return nil }

type fakeCharts struct{ rolledTo int }

func (f *fakeCharts) List(context.Context) ([]domain.Release, error) {
	return []domain.Release{{ID: "galaxy", Name: "galaxy", Namespace: "default", ChartVersion: "3.1.0", Revision: 2, State: "deployed"}}, nil
}

func (f *fakeCharts) Get(_ context.Context, id string) (domain.Release, error) {
	if id != "galaxy" {
		return domain.Release{}, domain.NewNotFoundError("chart", id)
	}
	return domain.Release{ID: "galaxy", Name: "galaxy", Revision: 2, Values: map[string]any{"persistence": map[string]any{"size": "95Gi"}}}, nil
}

func (f *fakeCharts) Create(context.Context, domain.InstallRequest) (domain.Release, error) {
	return domain.Release{}, nil
}

func (f *fakeCharts) Update(context.Context, string, map[string]any) (domain.Release, error) {
	return domain.Release{}, nil
}

func (f *fakeCharts) Rollback(_ context.Context, id string, revision int) (domain.Release, error) {
	f.rolledTo = revision
	return domain.Release{ID: id, Revision: 3}, nil
}

func (f *fakeCharts) Delete(context.Context, string) error { return nil }

type fakeNamespaces struct{}

func (fakeNamespaces) List(context.Context) ([]domain.Namespace, error) {
	return []domain.Namespace{{Name: "default", Status: "Active", Age: "12d"}}, nil
}

func (fakeNamespaces) Get(_ context.Context, name string) (domain.Namespace, error) {
	return domain.Namespace{Name: name}, nil
}

func (fakeNamespaces) Create(_ context.Context, name string) (domain.Namespace, error) {
	return domain.Namespace{Name: name, Status: "Active"}, nil
}

func (fakeNamespaces) Delete(context.Context, string) error { return nil }

type fakePackaging struct{ posargs []string }

func (f *fakePackaging) CheckRequirements(context.Context) (domain.Requirements, error) {
	pin, err := semver.NewConstraint("=0.1.4")
	if err != nil {
		return nil, err
	}
	return domain.Requirements{
		{Line: 2, Kind: domain.KindVCS, Name: "cloudbridge", Location: "https://github.com/CloudVE/cloudbridge", Ref: "master"},
		{Line: 5, Kind: domain.KindPackage, Name: "django-oidc", Specifier: "==0.1.4", Constraint: pin},
	}, nil
}

func (f *fakePackaging) InstallRequirements(context.Context) error { return nil }

func (f *fakePackaging) LoadTestEnv(context.Context) (domain.TestEnv, error) {
	return domain.TestEnv{
		EnvList:  []string{"py38"},
		Commands: [][]string{{"python", "manage.py", "test"}},
		SetEnv:   map[string]string{"DJANGO_SETTINGS_MODULE": "cloudman.settings_test"},
		Dir:      "/src",
	}, nil
}

func (f *fakePackaging) RunTests(_ context.Context, posargs []string) error {
	f.posargs = posargs
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type harness struct {
	stack     *fakeStack
	repos     *fakeRepos
	charts    *fakeCharts
	packaging *fakePackaging
	loaded    settings
	cleaned   bool
}

func newHarness() *harness {
	return &harness{
		stack:     &fakeStack{},
		repos:     &fakeRepos{},
		charts:    &fakeCharts{},
		packaging: &fakePackaging{},
	}
}

func (h *harness) load(_ context.Context, s settings, _, _ io.Writer) (*services, func(), error) {
	h.loaded = s
	return &services{
		Stack:      h.stack,
		Repos:      h.repos,
		Charts:     h.charts,
		Namespaces: fakeNamespaces{},
		Packaging:  h.packaging,
	}, func() { h.cleaned = true }, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(context.Background(), args, &out, &errOut, h.load)
	return out.String(), err
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidateCmd(t *testing.T) {
	h := newHarness()
	h.stack.report = domain.ValidationReport{Descriptor: domain.Descriptor{
		Repositories: []domain.Repository{{Name: "cloudve"}},
		Charts:       []domain.ChartEntry{{Key: "galaxy"}, {Key: "cvmfs"}},
	}}

	out, err := h.run(t, "validate", "-f", "values/stack.yaml")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	assertContains(t, out, "valid: 1 repositories, 2 charts")
	if h.loaded.stackFile != "values/stack.yaml" {
		t.Errorf("stack file flag = %q", h.loaded.stackFile)
	}
	if !h.cleaned {
		t.Error("cleanup not called")
	}

	h.stack.report.Errors = []string{`chart "galaxy": repository "x" is not declared`}
	out, err = h.run(t, "validate")
	if err == nil || !strings.Contains(err.Error(), "1 problem") {
		t.Errorf("validate invalid error = %v", err)
	}
	assertContains(t, out, `repository "x" is not declared`)
}

func TestRenderCmd(t *testing.T) {
	h := newHarness()
	h.stack.rendered = []domain.RenderedChart{{
		Entry: domain.ChartEntry{Key: "galaxy", Name: "cloudve/galaxy"},
		YAML:  []byte("ingress:\n  path: /galaxy\n"),
	}}

	out, err := h.run(t, "render")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	assertContains(t, out, "# Chart: galaxy (cloudve/galaxy)", "path: /galaxy")

	out, err = h.run(t, "render", "--manifests")
	if err != nil {
		t.Fatalf("render --manifests error = %v", err)
	}
	assertContains(t, out, "kind: Deployment")
}

func TestApplyCmd(t *testing.T) {
	h := newHarness()
	h.stack.results = []domain.ApplyResult{
		{ChartKey: "galaxy", Release: "galaxy", Namespace: "default", Status: domain.StatusChanged, Summary: "Upgraded galaxy"},
		{ChartKey: "cvmfs", Release: "cvmfs", Namespace: "cvmfs", Status: domain.StatusUnchanged, Summary: "No changes detected."},
	}

	out, err := h.run(t, "apply", "--only", "gal*", "--dry-run")
	if err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if !h.stack.opts.DryRun || h.stack.opts.Only != "gal*" {
		t.Errorf("options = %+v", h.stack.opts)
	}
	assertContains(t, out, "CHART", "Changed", "1 unchanged, 1 changed, 0 failed")

	h.stack.results = append(h.stack.results, domain.ApplyResult{ChartKey: "jupyter", Status: domain.StatusError, Summary: "boom"})
	if _, err := h.run(t, "apply"); err == nil {
		t.Error("apply with a failed chart should return an error")
	}
}

func TestDiffCmd(t *testing.T) {
	h := newHarness()
	h.stack.results = []domain.ApplyResult{
		{ChartKey: "galaxy", Status: domain.StatusChanged, Diff: "--- galaxy/default (installed)\n+++ galaxy/default (desired)"},
	}

	out, err := h.run(t, "diff")
	if err != nil {
		t.Fatalf("diff error = %v", err)
	}
	if !h.stack.opts.DryRun {
		t.Error("diff must be a dry run")
	}
	assertContains(t, out, "+++ galaxy/default (desired)")
}

func TestHelmsmanCmds(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "repo", "list")
	if err != nil {
		t.Fatalf("repo list error = %v", err)
	}
	assertContains(t, out, "cloudve", "https://example.com/charts")

	if _, err := h.run(t, "repo", "add", "jupyterhub", "https://jupyterhub.github.io/helm-chart/"); err != nil {
		t.Fatalf("repo add error = %v", err)
	}
	if len(h.repos.added) != 1 {
		t.Errorf("added = %v", h.repos.added)
	}

	out, err = h.run(t, "chart", "list")
	if err != nil {
		t.Fatalf("chart list error = %v", err)
	}
	assertContains(t, out, "Galaxy", "/galaxy/", "3.1.0")

	out, err = h.run(t, "chart", "get", "galaxy")
	if err != nil {
		t.Fatalf("chart get error = %v", err)
	}
	assertContains(t, out, "VALUES:", "size: 95Gi")

	if _, err := h.run(t, "chart", "get", "nope"); !domain.IsNotFound(err) {
		t.Errorf("chart get missing error = %v", err)
	}

	if _, err := h.run(t, "chart", "rollback", "galaxy"); err != nil || h.charts.rolledTo != 0 {
		t.Errorf("rollback error = %v, revision = %d", err, h.charts.rolledTo)
	}
	if _, err := h.run(t, "chart", "rollback", "galaxy", "1"); err != nil || h.charts.rolledTo != 1 {
		t.Errorf("rollback 1 error = %v, revision = %d", err, h.charts.rolledTo)
	}
	if _, err := h.run(t, "chart", "rollback", "galaxy", "one"); err == nil {
		t.Error("non-numeric revision should fail")
	}

	out, err = h.run(t, "ns", "list")
	if err != nil {
		t.Fatalf("namespace list error = %v", err)
	}
	assertContains(t, out, "default", "12d")
}

func TestPackagingCmds(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "requirements", "check")
	if err != nil {
		t.Fatalf("requirements check error = %v", err)
	}
	assertContains(t, out, "cloudbridge", "vcs", "https://github.com/CloudVE/cloudbridge@master", "==0.1.4", "CONSTRAINT", "PINNED")

	out, err = h.run(t, "testenv", "show")
	if err != nil {
		t.Fatalf("testenv show error = %v", err)
	}
	assertContains(t, out, "py38", "DJANGO_SETTINGS_MODULE=cloudman.settings_test", "python manage.py test")

	if _, err := h.run(t, "testenv", "run", "--", "helmsman", "-v", "2"); err != nil {
		t.Fatalf("testenv run error = %v", err)
	}
	if strings.Join(h.packaging.posargs, " ") != "helmsman -v 2" {
		t.Errorf("posargs = %v", h.packaging.posargs)
	}
}

func TestRequirementsCheckPackage(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    []string
	}{
		{name: "normalised name", args: []string{"django_oidc"}, want: []string{"django-oidc", "0.1.4"}},
		{name: "allowed version", args: []string{"django-oidc", "0.1.4"}, want: []string{"django-oidc"}},
		{name: "disallowed version", args: []string{"django-oidc", "0.2.0"}, wantErr: `version 0.2.0 of django-oidc does not satisfy "==0.1.4"`},
		{name: "unconstrained vcs entry", args: []string{"cloudbridge", "9.9.9"}, want: []string{"cloudbridge"}},
		{name: "bad version", args: []string{"django-oidc", "latest"}, wantErr: `parsing version "latest"`},
		{name: "unknown package", args: []string{"paramiko"}, wantErr: `package "paramiko" is not in the dependency file`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			out, err := h.run(t, append([]string{"requirements", "check"}, tt.args...)...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertContains(t, out, tt.want...)
			if tt.args[0] != "cloudbridge" && strings.Contains(out, "cloudbridge") {
				t.Errorf("output lists other packages:\n%s", out)
			}
		})
	}
}

func TestLoadErrorStopsCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	err := execute(context.Background(), []string{"validate"}, &out, &errOut,
		func(context.Context, settings, io.Writer, io.Writer) (*services, func(), error) {
			return nil, nil, errors.New("loading config: invalid PORT")
		})
	if err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("error = %v", err)
	}
}

func TestFailingCommandStillCleansUp(t *testing.T) {
	h := newHarness()
	h.stack.report.Errors = []string{`chart "galaxy": repository "x" is not declared`}

	if _, err := h.run(t, "validate"); err == nil {
		t.Fatal("validate should fail for an invalid descriptor")
	}
	if !h.cleaned {
		t.Error("cleanup not called after a failing command")
	}
}

func TestColorizeStatus_PlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []domain.Status{domain.StatusUnchanged, domain.StatusChanged, domain.StatusError} {
		if got := colorizeStatus(&buf, s); got != s.String() {
			t.Errorf("colorizeStatus(%v) = %q, want plain", s, got)
		}
	}
}
