// Package tplvalues renders chart values, expanding the templated strings of
// a chart's tplValues tree with text/template and the sprig function set.
package tplvalues

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Adapter implements ports.ValuesRendererPort.
type Adapter struct {
	funcs template.FuncMap
}

// New creates a new tplValues renderer.
func New() *Adapter {
	funcs := sprig.TxtFuncMap()
	funcs["toYaml"] = toYAML
	return &Adapter{funcs: funcs}
}

// RenderValues returns the chart's values with the rendered tplValues merged
// on top. Templates see .Values (the descriptor's top-level globals with the
// chart's plain values merged over them), .Release.Name, .Release.Namespace,
// .Chart.Name and .Chart.Repository. Globals only feed templates; they are
// not copied into the returned values. A reference to a missing key is an
// error rather than an empty string.
func (a *Adapter) RenderValues(entry domain.ChartEntry, globals map[string]any) (map[string]any, error) {
	values, err := domain.CopyValues(entry.Values)
	if err != nil {
		return nil, err
	}
	if len(entry.TplValues) == 0 {
		return values, nil
	}

	scope, err := domain.MergeValues(globals, values)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"Values": scope,
		"Release": map[string]any{
			"Name":      entry.Release(),
			"Namespace": entry.Namespace,
		},
		"Chart": map[string]any{
			"Name":       entry.ChartName(),
			"Repository": entry.RepoAlias(),
		},
	}

	rendered, err := a.renderTree(entry.TplValues, data, "tplValues")
	if err != nil {
		return nil, fmt.Errorf("chart %q: %w", entry.Key, err)
	}
	return domain.MergeValues(values, rendered.(map[string]any))
}

// renderTree walks v and renders every string leaf. path names the current
// position for error messages.
func (a *Adapter) renderTree(v any, data map[string]any, path string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			r, err := a.renderTree(child, data, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			r, err := a.renderTree(child, data, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return a.renderString(t, data, path)
	default:
		return v, nil
	}
}

func (a *Adapter) renderString(s string, data map[string]any, path string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New(path).Funcs(a.funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", path, err)
	}
	return buf.String(), nil
}

// toYAML mirrors the helper of the same name available to chart templates.
func toYAML(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(data), "\n")
}
