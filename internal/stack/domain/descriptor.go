package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
)

// Repository is a named helm chart repository.
type Repository struct {
	Name string
	URL  string
}

// ChartEntry is one chart of the stack descriptor.
type ChartEntry struct {
	Key             string // logical name, the mapping key under charts
	Name            string // "<repo-alias>/<chart-name>"
	Namespace       string
	CreateNamespace bool
	Version         string // optional semver constraint
	ReleaseName     string // optional, defaults to Key
	Values          map[string]any
	TplValues       map[string]any
}

// RepoAlias returns the repository alias part of the chart name.
// Example: "cloudve/galaxy" -> "cloudve"
func (c ChartEntry) RepoAlias() string {
	alias, _, found := strings.Cut(c.Name, "/")
	if !found {
		return ""
	}
	return alias
}

// ChartName returns the chart part of the chart name.
// Example: "cloudve/galaxy" -> "galaxy"
func (c ChartEntry) ChartName() string {
	_, chart, found := strings.Cut(c.Name, "/")
	if !found {
		return c.Name
	}
	return chart
}

// Release returns the helm release name the chart is installed under.
func (c ChartEntry) Release() string {
	if c.ReleaseName != "" {
		return c.ReleaseName
	}
	return c.Key
}

// Descriptor is the parsed chart-of-charts document. It is read once and
// never mutated by the services that consume it.
type Descriptor struct {
	Repositories []Repository
	Charts       []ChartEntry // document order
	Extra        map[string]any
}

// Chart returns the chart entry with the given logical key.
func (d Descriptor) Chart(key string) (ChartEntry, bool) {
	for _, c := range d.Charts {
		if c.Key == key {
			return c, true
		}
	}
	return ChartEntry{}, false
}

// Repository returns the repository with the given name.
func (d Descriptor) Repository(name string) (Repository, bool) {
	for _, r := range d.Repositories {
		if r.Name == name {
			return r, true
		}
	}
	return Repository{}, false
}

// ChartKeys returns the logical chart keys in document order.
func (d Descriptor) ChartKeys() []string {
	keys := make([]string, 0, len(d.Charts))
	for _, c := range d.Charts {
		keys = append(keys, c.Key)
	}
	return keys
}

// Validate checks the structural invariants of the descriptor and reports
// every violation, not just the first one. The returned error wraps a
// *ValidationError.
func (d Descriptor) Validate() error {
	var result *multierror.Error

	seenRepos := make(map[string]struct{}, len(d.Repositories))
	for i, r := range d.Repositories {
		if r.Name == "" {
			result = multierror.Append(result, fmt.Errorf("repositories[%d]: name is empty", i))
			continue
		}
		if _, dup := seenRepos[r.Name]; dup {
			result = multierror.Append(result, fmt.Errorf("repository %q: declared more than once", r.Name))
		}
		seenRepos[r.Name] = struct{}{}

		if err := validateRepoURL(r.URL); err != nil {
			result = multierror.Append(result, fmt.Errorf("repository %q: %w", r.Name, err))
		}
	}

	seenKeys := make(map[string]struct{}, len(d.Charts))
	for _, c := range d.Charts {
		if _, dup := seenKeys[c.Key]; dup {
			result = multierror.Append(result, fmt.Errorf("chart %q: declared more than once", c.Key))
		}
		seenKeys[c.Key] = struct{}{}

		alias := c.RepoAlias()
		if alias == "" || c.ChartName() == "" || strings.Count(c.Name, "/") != 1 {
			result = multierror.Append(result,
				fmt.Errorf("chart %q: name %q must have the form <repository>/<chart>", c.Key, c.Name))
		} else if _, ok := seenRepos[alias]; !ok {
			result = multierror.Append(result,
				fmt.Errorf("chart %q: repository %q is not declared", c.Key, alias))
		}

		if c.CreateNamespace && strings.TrimSpace(c.Namespace) == "" {
			result = multierror.Append(result,
				fmt.Errorf("chart %q: create_namespace is set but namespace is empty", c.Key))
		}

		if c.Version != "" {
			if _, err := semver.NewConstraint(c.Version); err != nil {
				result = multierror.Append(result,
					fmt.Errorf("chart %q: invalid version constraint %q: %w", c.Key, c.Version, err))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return &ValidationError{Subject: "stack descriptor", Err: err}
	}
	return nil
}

func validateRepoURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "oci":
	default:
		return fmt.Errorf("url %q must use http, https or oci", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
