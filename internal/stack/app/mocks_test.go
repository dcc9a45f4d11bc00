package app

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Mock adapters for testing

type mockSource struct {
	files map[string]string
	reads int
}

func (m *mockSource) ReadFile(_ context.Context, path string) ([]byte, error) {
	m.reads++
	content, ok := m.files[path]
	if !ok {
		return nil, domain.NewNotFoundError("file", path)
	}
	return []byte(content), nil
}

// mockCodec decodes by looking the raw document up in a table.
type mockCodec struct {
	descriptors map[string]domain.Descriptor
}

func (m *mockCodec) Decode(data []byte) (domain.Descriptor, error) {
	d, ok := m.descriptors[string(data)]
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("yaml: cannot decode %q", data)
	}
	return d, nil
}

func (m *mockCodec) Encode(domain.Descriptor) ([]byte, error) {
	return nil, nil
}

type mockSchema struct {
	err error
}

func (m *mockSchema) Check([]byte) error { return m.err }

type mockValues struct {
	failFor map[string]error // chart key -> error
	globals []map[string]any
}

func (m *mockValues) RenderValues(entry domain.ChartEntry, globals map[string]any) (map[string]any, error) {
	m.globals = append(m.globals, globals)
	if err := m.failFor[entry.Key]; err != nil {
		return nil, err
	}
	return domain.MergeValues(entry.Values, entry.TplValues)
}

type mockManifests struct{}

func (m *mockManifests) Template(_ context.Context, rc domain.RenderedChart) ([]byte, error) {
	return []byte("# " + rc.Entry.Key + "\n" + string(rc.YAML)), nil
}

type mockRepos struct {
	repos   []domain.Repository
	added   []domain.Repository
	updates int
	addErr  error
}

func (m *mockRepos) AddRepository(_ context.Context, repo domain.Repository) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, repo)
	return nil
}

func (m *mockRepos) UpdateRepositories(context.Context) error {
	m.updates++
	return nil
}

func (m *mockRepos) ListRepositories(context.Context) ([]domain.Repository, error) {
	return m.repos, nil
}

type rollbackCall struct {
	release, namespace string
	revision           int
}

type mockReleases struct {
	releases    []domain.Release
	userValues  map[string]map[string]any // release -> user-supplied values
	allValues   map[string]map[string]any // release -> computed values
	installErr  map[string]error          // release -> error
	installs    []domain.InstallRequest
	rollbacks   []rollbackCall
	uninstalled []string
	// installAdds makes Install register the release so later lookups find it.
	installAdds bool
}

func (m *mockReleases) ListReleases(context.Context) ([]domain.Release, error) {
	return append([]domain.Release(nil), m.releases...), nil
}

func (m *mockReleases) GetValues(_ context.Context, release, _ string, all bool) (map[string]any, error) {
	found := false
	for _, r := range m.releases {
		if r.ID == release {
			found = true
		}
	}
	if !found {
		return nil, domain.NewNotFoundError("release", release)
	}
	src := m.userValues
	if all {
		src = m.allValues
	}
	return domain.CopyValues(src[release])
}

func (m *mockReleases) Install(_ context.Context, req domain.InstallRequest) error {
	if err := m.installErr[req.ReleaseName]; err != nil {
		return err
	}
	m.installs = append(m.installs, req)
	if m.installAdds {
		entry := domain.ChartEntry{Name: req.Chart}
		m.releases = append(m.releases, domain.Release{
			ID:           req.ReleaseName,
			Name:         entry.ChartName(),
			Namespace:    req.Namespace,
			ChartVersion: "1.0.0",
			Revision:     1,
			State:        "deployed",
		})
	}
	return nil
}

func (m *mockReleases) Rollback(_ context.Context, release, namespace string, revision int) error {
	m.rollbacks = append(m.rollbacks, rollbackCall{release, namespace, revision})
	return nil
}

func (m *mockReleases) Uninstall(_ context.Context, release, _ string) error {
	m.uninstalled = append(m.uninstalled, release)
	return nil
}

type mockNamespaces struct {
	existing map[string]bool
	created  []string
	deleted  []string
}

func (m *mockNamespaces) ListNamespaces(context.Context) ([]domain.Namespace, error) {
	var out []domain.Namespace
	for name := range m.existing {
		out = append(out, domain.Namespace{Name: name, Status: "Active"})
	}
	return out, nil
}

func (m *mockNamespaces) GetNamespace(_ context.Context, name string) (domain.Namespace, error) {
	if !m.existing[name] {
		return domain.Namespace{}, domain.NewNotFoundError("namespace", name)
	}
	return domain.Namespace{Name: name, Status: "Active", Age: "1d"}, nil
}

func (m *mockNamespaces) CreateNamespace(_ context.Context, name string) error {
	if m.existing[name] {
		return &domain.ExistsError{Kind: "namespace", Name: name}
	}
	if m.existing == nil {
		m.existing = map[string]bool{}
	}
	m.existing[name] = true
	m.created = append(m.created, name)
	return nil
}

func (m *mockNamespaces) DeleteNamespace(_ context.Context, name string) error {
	if !m.existing[name] {
		return domain.NewNotFoundError("namespace", name)
	}
	delete(m.existing, name)
	m.deleted = append(m.deleted, name)
	return nil
}

type mockLock struct {
	locked, unlocked int
}

func (m *mockLock) Lock(context.Context) (func(), error) {
	m.locked++
	return func() { m.unlocked++ }, nil
}

// mockDiff reports a change whenever the two sides differ.
type mockDiff struct{}

func (mockDiff) ComputeDiff(baseName, headName string, base, head []byte) string {
	if reflect.DeepEqual(base, head) {
		return ""
	}
	return fmt.Sprintf("--- %s\n+++ %s\n-%s\n+%s", baseName, headName, base, head)
}

type mockRequirementsParser struct {
	reqs domain.Requirements
	err  error
}

func (m *mockRequirementsParser) Parse(io.Reader) (domain.Requirements, error) {
	return m.reqs, m.err
}

type mockTestEnvParser struct {
	env domain.TestEnv
	dir string
}

func (m *mockTestEnvParser) Parse(_ []byte, dir string) (domain.TestEnv, error) {
	m.dir = dir
	env := m.env
	env.Dir = dir
	return env, nil
}

type mockRunner struct {
	commands []domain.Command
	failOn   string // command name that fails
}

func (m *mockRunner) Run(_ context.Context, cmd domain.Command) error {
	m.commands = append(m.commands, cmd)
	if cmd.Name == m.failOn {
		return fmt.Errorf("exit status 1")
	}
	return nil
}
