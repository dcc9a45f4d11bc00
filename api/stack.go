package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Stack is the top-level schema of the chart-of-charts descriptor: the chart
// repositories to register and the charts to deploy from them.
type Stack struct {
	Repositories []Repository `yaml:"repositories,omitempty"`
	Charts       Charts       `yaml:"charts,omitempty"`

	// Extra captures top-level keys the tool does not interpret so they
	// survive a decode/encode cycle.
	Extra map[string]any `yaml:",inline"`
}

// Repository is a named helm chart repository.
type Repository struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Chart is a single entry under the charts mapping.
type Chart struct {
	Name            string         `yaml:"name"`
	Namespace       string         `yaml:"namespace,omitempty"`
	CreateNamespace bool           `yaml:"create_namespace,omitempty"`
	Version         string         `yaml:"version,omitempty"`
	ReleaseName     string         `yaml:"release_name,omitempty"`
	Values          map[string]any `yaml:"values,omitempty"`
	TplValues       map[string]any `yaml:"tplValues,omitempty"`
}

// NamedChart pairs a chart with its logical key.
type NamedChart struct {
	Key   string
	Chart Chart
}

// Charts is the charts mapping kept in document order. yaml.v3 decodes
// mappings into Go maps, which would lose that order.
type Charts []NamedChart

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Charts) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*c = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: charts must be a mapping", node.Line)
	}

	out := make(Charts, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var chart Chart
		if err := valueNode.Decode(&chart); err != nil {
			return fmt.Errorf("chart %q: %w", keyNode.Value, err)
		}
		out = append(out, NamedChart{Key: keyNode.Value, Chart: chart})
	}
	*c = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Charts) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, nc := range c {
		var value yaml.Node
		if err := value.Encode(nc.Chart); err != nil {
			return nil, fmt.Errorf("chart %q: %w", nc.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: nc.Key},
			&value,
		)
	}
	return node, nil
}
