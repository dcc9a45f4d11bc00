// Package descriptoryaml reads and writes the stack descriptor as YAML.
package descriptoryaml

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nathantilsley/chart-stack/api"
	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Codec implements ports.DescriptorCodecPort with gopkg.in/yaml.v3.
type Codec struct{}

// New creates a new YAML descriptor codec.
func New() *Codec {
	return &Codec{}
}

// Decode parses a descriptor document. An empty document yields an empty
// descriptor.
func (c *Codec) Decode(data []byte) (domain.Descriptor, error) {
	var stack api.Stack
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &stack); err != nil {
			return domain.Descriptor{}, fmt.Errorf("parsing stack descriptor: %w", err)
		}
	}
	return toDomain(stack), nil
}

// Encode serialises a descriptor: repositories first, then charts in
// document order, then any uninterpreted top-level keys.
func (c *Codec) Encode(d domain.Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fromDomain(d)); err != nil {
		return nil, fmt.Errorf("encoding stack descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding stack descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

func toDomain(s api.Stack) domain.Descriptor {
	d := domain.Descriptor{Extra: nilIfEmpty(s.Extra)}
	for _, r := range s.Repositories {
		d.Repositories = append(d.Repositories, domain.Repository{Name: r.Name, URL: r.URL})
	}
	for _, nc := range s.Charts {
		d.Charts = append(d.Charts, domain.ChartEntry{
			Key:             nc.Key,
			Name:            nc.Chart.Name,
			Namespace:       nc.Chart.Namespace,
			CreateNamespace: nc.Chart.CreateNamespace,
			Version:         nc.Chart.Version,
			ReleaseName:     nc.Chart.ReleaseName,
			Values:          nilIfEmpty(nc.Chart.Values),
			TplValues:       nilIfEmpty(nc.Chart.TplValues),
		})
	}
	return d
}

func fromDomain(d domain.Descriptor) api.Stack {
	s := api.Stack{Extra: d.Extra}
	for _, r := range d.Repositories {
		s.Repositories = append(s.Repositories, api.Repository{Name: r.Name, URL: r.URL})
	}
	for _, c := range d.Charts {
		s.Charts = append(s.Charts, api.NamedChart{
			Key: c.Key,
			Chart: api.Chart{
				Name:            c.Name,
				Namespace:       c.Namespace,
				CreateNamespace: c.CreateNamespace,
				Version:         c.Version,
				ReleaseName:     c.ReleaseName,
				Values:          c.Values,
				TplValues:       c.TplValues,
			},
		})
	}
	return s
}

// nilIfEmpty normalises empty maps so "values: {}" and a missing key decode
// to the same thing.
func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}
