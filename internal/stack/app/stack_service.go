package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

const (
	noChangesMessage = "No changes detected."
	releaseDeployed  = "deployed"
)

// StackDeps are the driven ports used by StackService. Schema and
// Manifests are optional.
type StackDeps struct {
	Source     ports.SourcePort
	StackPath  string
	Codec      ports.DescriptorCodecPort
	Schema     ports.SchemaPort
	Values     ports.ValuesRendererPort
	Manifests  ports.ManifestRendererPort
	Repos      ports.RepositoryPort
	Releases   ports.ReleasePort
	Namespaces ports.NamespacePort
	Lock       ports.LockPort
	Diff       ports.DiffPort
}

// StackService implements ports.StackUseCase: it loads the stack descriptor,
// renders chart values and reconciles the cluster with it.
type StackService struct {
	deps   StackDeps
	logger *slog.Logger
	tracer trace.Tracer

	chartsApplied metric.Int64Counter
	applyDuration metric.Float64Histogram
}

// NewStackService creates a StackService.
func NewStackService(deps StackDeps, logger *slog.Logger, meter metric.Meter, tracer trace.Tracer) *StackService {
	applied, err := meter.Int64Counter("chart_stack.apply.charts",
		metric.WithDescription("Charts processed by apply, by status"))
	if err != nil {
		logger.Warn("creating apply counter", "error", err)
		applied, _ = noopmetric.Meter{}.Int64Counter("chart_stack.apply.charts")
	}
	duration, err := meter.Float64Histogram("chart_stack.apply.duration",
		metric.WithDescription("Duration of a full apply run"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("creating apply histogram", "error", err)
		duration, _ = noopmetric.Meter{}.Float64Histogram("chart_stack.apply.duration")
	}
	return &StackService{
		deps:          deps,
		logger:        logger,
		tracer:        tracer,
		chartsApplied: applied,
		applyDuration: duration,
	}
}

// Load reads and decodes the descriptor without validating it.
func (s *StackService) Load(ctx context.Context) (domain.Descriptor, error) {
	raw, err := s.deps.Source.ReadFile(ctx, s.deps.StackPath)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("reading %s: %w", s.deps.StackPath, err)
	}
	d, err := s.deps.Codec.Decode(raw)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("decoding %s: %w", s.deps.StackPath, err)
	}
	return d, nil
}

// Validate runs the schema and structural checks and reports every
// violation. Only a failure to read the descriptor is returned as an error.
func (s *StackService) Validate(ctx context.Context) (domain.ValidationReport, error) {
	raw, err := s.deps.Source.ReadFile(ctx, s.deps.StackPath)
	if err != nil {
		return domain.ValidationReport{}, fmt.Errorf("reading %s: %w", s.deps.StackPath, err)
	}

	var report domain.ValidationReport
	if s.deps.Schema != nil {
		report.Errors = append(report.Errors, violations(s.deps.Schema.Check(raw))...)
	}
	d, err := s.deps.Codec.Decode(raw)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, nil
	}
	report.Descriptor = d
	report.Errors = append(report.Errors, violations(d.Validate())...)
	return report, nil
}

// Render returns the final values of every chart whose key matches only.
func (s *StackService) Render(ctx context.Context, only string) ([]domain.RenderedChart, error) {
	d, err := s.loadValid(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := selectCharts(d, only)
	if err != nil {
		return nil, err
	}

	rendered := make([]domain.RenderedChart, 0, len(entries))
	for _, entry := range entries {
		rc, err := s.render(entry, d.Extra)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, rc)
	}
	return rendered, nil
}

// Template renders the full kubernetes manifests of the selected charts,
// keyed by chart key.
func (s *StackService) Template(ctx context.Context, only string) (map[string][]byte, error) {
	if s.deps.Manifests == nil {
		return nil, errors.New("manifest rendering is not configured")
	}
	rendered, err := s.Render(ctx, only)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rendered))
	for _, rc := range rendered {
		manifest, err := s.deps.Manifests.Template(ctx, rc)
		if err != nil {
			return nil, err
		}
		out[rc.Entry.Key] = manifest
	}
	return out, nil
}

// Apply reconciles the cluster with the descriptor. Charts are processed in
// document order; a failing chart is reported and the rest continue. In a
// dry run nothing is mutated and each result carries the values diff.
func (s *StackService) Apply(ctx context.Context, opts domain.ApplyOptions) ([]domain.ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "stack.apply", trace.WithAttributes(
		attribute.Bool("dry_run", opts.DryRun),
		attribute.String("only", opts.Only),
	))
	defer span.End()
	start := time.Now()

	d, err := s.loadValid(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entries, err := selectCharts(d, opts.Only)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		unlock, err := s.deps.Lock.Lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring apply lock: %w", err)
		}
		defer unlock()

		if err := s.registerRepositories(ctx, d.Repositories); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	installed, err := s.deps.Releases.ListReleases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing installed releases: %w", err)
	}
	index := make(map[string]domain.Release, len(installed))
	for _, rel := range installed {
		index[releaseKey(rel.ID, rel.Namespace)] = rel
	}

	s.logger.Info("applying stack", "charts", len(entries), "dryRun", opts.DryRun)
	results := make([]domain.ApplyResult, 0, len(entries))
	for _, entry := range entries {
		r := s.applyChart(ctx, entry, d.Extra, index, opts.DryRun)
		s.chartsApplied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", r.Status.String()),
			attribute.Bool("dry_run", opts.DryRun),
		))
		results = append(results, r)
	}

	unchanged, changed, failed := domain.CountByStatus(results)
	s.logger.Info("stack applied", "unchanged", unchanged, "changed", changed, "errors", failed, "dryRun", opts.DryRun)
	s.applyDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d charts failed", failed))
	}
	return results, nil
}

func (s *StackService) registerRepositories(ctx context.Context, repos []domain.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	for _, repo := range repos {
		if err := s.deps.Repos.AddRepository(ctx, repo); err != nil {
			return err
		}
	}
	return s.deps.Repos.UpdateRepositories(ctx)
}

func (s *StackService) applyChart(
	ctx context.Context,
	entry domain.ChartEntry,
	globals map[string]any,
	installed map[string]domain.Release,
	dryRun bool,
) domain.ApplyResult {
	ctx, span := s.tracer.Start(ctx, "stack.apply.chart", trace.WithAttributes(
		attribute.String("chart", entry.Key),
		attribute.String("namespace", entry.Namespace),
	))
	defer span.End()

	result := domain.ApplyResult{
		ChartKey:  entry.Key,
		Release:   entry.Release(),
		Namespace: entry.Namespace,
	}
	fail := func(err error) domain.ApplyResult {
		s.logger.Error("chart failed", "chart", entry.Key, "error", err)
		span.SetStatus(codes.Error, err.Error())
		result.Status = domain.StatusError
		result.Summary = err.Error()
		return result
	}

	rc, err := s.render(entry, globals)
	if err != nil {
		return fail(err)
	}

	rel, exists := installed[releaseKey(entry.Release(), entry.Namespace)]
	result.Installed = !exists

	var live []byte
	if exists {
		values, err := s.deps.Releases.GetValues(ctx, rel.ID, rel.Namespace, false)
		if err != nil && !domain.IsNotFound(err) {
			return fail(fmt.Errorf("reading values of %s: %w", rel.ID, err))
		}
		if len(values) > 0 {
			if live, err = yaml.Marshal(values); err != nil {
				return fail(err)
			}
		}
	}
	var desired []byte
	if len(rc.Values) > 0 {
		desired = rc.YAML
	}
	result.Diff = s.deps.Diff.ComputeDiff(
		domain.DiffLabel(entry.Key, entry.Namespace, "installed"),
		domain.DiffLabel(entry.Key, entry.Namespace, "desired"),
		live, desired,
	)

	drift := releaseDrift(entry, rel, exists)
	if exists && result.Diff == "" && drift == "" {
		result.Status = domain.StatusUnchanged
		result.Summary = noChangesMessage
		return result
	}

	result.Status = domain.StatusChanged
	result.Summary = summarize(entry, exists, drift, dryRun)
	if dryRun {
		return result
	}

	if entry.CreateNamespace {
		if err := s.ensureNamespace(ctx, entry.Namespace); err != nil {
			return fail(err)
		}
	}
	err = s.deps.Releases.Install(ctx, domain.InstallRequest{
		ReleaseName: entry.Release(),
		Chart:       entry.Name,
		Namespace:   entry.Namespace,
		Version:     entry.Version,
		Values:      rc.Values,
	})
	if err != nil {
		return fail(err)
	}
	s.logger.Info("chart applied", "chart", entry.Key, "release", entry.Release(), "namespace", entry.Namespace)
	return result
}

func (s *StackService) ensureNamespace(ctx context.Context, name string) error {
	_, err := s.deps.Namespaces.GetNamespace(ctx, name)
	if err == nil {
		return nil
	}
	if !domain.IsNotFound(err) {
		return fmt.Errorf("checking namespace %s: %w", name, err)
	}
	s.logger.Info("creating namespace", "namespace", name)
	if err := s.deps.Namespaces.CreateNamespace(ctx, name); err != nil && !domain.IsExists(err) {
		return err
	}
	return nil
}

func (s *StackService) render(entry domain.ChartEntry, globals map[string]any) (domain.RenderedChart, error) {
	values, err := s.deps.Values.RenderValues(entry, globals)
	if err != nil {
		return domain.RenderedChart{}, err
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return domain.RenderedChart{}, fmt.Errorf("chart %q: encoding values: %w", entry.Key, err)
	}
	return domain.RenderedChart{Entry: entry, Values: values, YAML: data}, nil
}

func (s *StackService) loadValid(ctx context.Context) (domain.Descriptor, error) {
	report, err := s.Validate(ctx)
	if err != nil {
		return domain.Descriptor{}, err
	}
	if !report.Valid() {
		var all *multierror.Error
		for _, msg := range report.Errors {
			all = multierror.Append(all, errors.New(msg))
		}
		return domain.Descriptor{}, &domain.ValidationError{Subject: "stack descriptor", Err: all}
	}
	return report.Descriptor, nil
}

// selectCharts returns the charts whose key matches the glob only, in
// document order. An empty pattern selects every chart.
func selectCharts(d domain.Descriptor, only string) ([]domain.ChartEntry, error) {
	if only == "" {
		return d.Charts, nil
	}
	g, err := glob.Compile(only)
	if err != nil {
		return nil, &domain.ValidationError{Subject: "chart filter", Err: err}
	}
	var out []domain.ChartEntry
	for _, c := range d.Charts {
		if g.Match(c.Key) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, domain.NewNotFoundError("chart", only)
	}
	return out, nil
}

// releaseDrift describes why an installed release needs an upgrade even
// though its values match, or returns "". A release that is not deployed,
// comes from another chart or no longer satisfies the version constraint
// drifts.
func releaseDrift(entry domain.ChartEntry, rel domain.Release, exists bool) string {
	if !exists {
		return ""
	}
	var reasons []string
	if rel.State != "" && rel.State != releaseDeployed {
		reasons = append(reasons, fmt.Sprintf("release is %s", rel.State))
	}
	if rel.Name != "" && rel.Name != entry.ChartName() {
		reasons = append(reasons, fmt.Sprintf("installed from chart %s, want %s", rel.Name, entry.ChartName()))
	}
	if v := versionDrift(entry, rel); v != "" {
		reasons = append(reasons, v)
	}
	return strings.Join(reasons, "; ")
}

// versionDrift describes why an installed chart version no longer satisfies
// the entry's constraint, or returns "".
func versionDrift(entry domain.ChartEntry, rel domain.Release) string {
	if entry.Version == "" || rel.ChartVersion == "" {
		return ""
	}
	c, err := semver.NewConstraint(entry.Version)
	if err != nil {
		return ""
	}
	v, err := semver.NewVersion(rel.ChartVersion)
	if err != nil {
		return ""
	}
	if c.Check(v) {
		return ""
	}
	return fmt.Sprintf("chart version %s does not satisfy %s", rel.ChartVersion, entry.Version)
}

func summarize(entry domain.ChartEntry, exists bool, drift string, dryRun bool) string {
	verb := "Installed"
	switch {
	case exists && dryRun:
		verb = "Would upgrade"
	case exists:
		verb = "Upgraded"
	case dryRun:
		verb = "Would install"
	}
	msg := fmt.Sprintf("%s %s as release %s", verb, entry.Name, entry.Release())
	if entry.Namespace != "" {
		msg += " in namespace " + entry.Namespace
	}
	if drift != "" {
		msg += " (" + drift + ")"
	}
	return msg + "."
}

// releaseKey identifies a release. helm reports the namespace it resolved,
// so an entry without namespace is matched against "default".
func releaseKey(name, namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	return namespace + "/" + name
}

// violations flattens a validation error into one message per violation.
func violations(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
