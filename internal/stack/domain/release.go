package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// Release is an installed chart as reported by helm. Its ID is the helm
// release name.
type Release struct {
	ID           string
	Name         string // chart name, e.g. "galaxy"
	Namespace    string
	ChartVersion string
	Revision     int
	AppVersion   string
	State        string
	Updated      string
	Values       map[string]any
}

// DisplayName returns the chart name in title case ("galaxy" -> "Galaxy").
func (r Release) DisplayName() string {
	return titleCase(r.Name)
}

// AccessAddress returns the path the chart's service is exposed under.
func (r Release) AccessAddress() string {
	return "/" + r.Name + "/"
}

var chartRefPattern = regexp.MustCompile(`^(.+?)-(v?\d+\.\d+\.\d+\S*)$`)

// ParseChartRef splits helm's CHART column into chart name and version.
// Example: "galaxy-3.1.0" -> ("galaxy", "3.1.0")
func ParseChartRef(ref string) (name, version string) {
	m := chartRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return ref, ""
	}
	return m[1], m[2]
}

// InstallRequest describes an install or upgrade of a release.
type InstallRequest struct {
	ReleaseName string
	Chart       string // "<repo>/<chart>"
	Namespace   string
	Version     string
	Values      map[string]any
	ReuseValues bool
}

// Namespace is a kubernetes namespace.
type Namespace struct {
	Name   string
	Status string
	Age    string
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		if !unicode.IsLetter(r) {
			upperNext = true
			b.WriteRune(r)
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
