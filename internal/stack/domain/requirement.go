package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
)

// RequirementKind classifies a dependency file line.
type RequirementKind int

const (
	KindPackage  RequirementKind = iota // name[extras]<specifier>
	KindEditable                        // -e <path or url>
	KindVCS                             // git+URL[@ref]#egg=name
)

func (k RequirementKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

var kindNames = [...]string{
	KindPackage:  "package",
	KindEditable: "editable",
	KindVCS:      "vcs",
}

// Requirement is one dependency specifier of a requirements file.
type Requirement struct {
	Line       int
	Kind       RequirementKind
	Name       string   // as written; empty for editable installs without egg
	Extras     []string // e.g. ["test"] for ".[test]"
	Specifier  string   // e.g. ">=1.0,<2.0"
	Constraint *semver.Constraints
	Location   string // editable path or VCS URL without the vcs+ prefix
	VCS        string // "git", "hg", ...
	Ref        string // VCS revision after '@'
	Comment    string // comment block directly above the line
	Raw        string
}

// Key returns the normalised package name used for duplicate detection,
// or "" when the requirement is anonymous.
func (r Requirement) Key() string {
	return NormalizePackageName(r.Name)
}

// Pinned returns the exact version when the specifier pins one.
func (r Requirement) Pinned() (string, bool) {
	spec := strings.TrimSpace(r.Specifier)
	if !strings.HasPrefix(spec, "==") || strings.Contains(spec, ",") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(spec, "==")), true
}

// Allows reports whether version satisfies the requirement. Requirements
// without a semver-expressible constraint allow every version.
func (r Requirement) Allows(version string) (bool, error) {
	if r.Constraint == nil {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("parsing version %q: %w", version, err)
	}
	return r.Constraint.Check(v), nil
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizePackageName lowercases a python package name and collapses runs
// of '-', '_' and '.' into a single '-'.
func NormalizePackageName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Requirements is a dependency file in install order.
type Requirements []Requirement

// Names returns the package names in file order, skipping anonymous entries.
func (rs Requirements) Names() []string {
	var names []string
	for _, r := range rs {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names
}

// Find returns the requirement for a package name, matching normalised names.
func (rs Requirements) Find(name string) (Requirement, bool) {
	key := NormalizePackageName(name)
	for _, r := range rs {
		if r.Key() == key && key != "" {
			return r, true
		}
	}
	return Requirement{}, false
}

// Duplicates returns the normalised names that appear more than once, sorted.
func (rs Requirements) Duplicates() []string {
	counts := make(map[string]int)
	for _, r := range rs {
		if k := r.Key(); k != "" {
			counts[k]++
		}
	}
	var dups []string
	for k, n := range counts {
		if n > 1 {
			dups = append(dups, k)
		}
	}
	sort.Strings(dups)
	return dups
}

// Validate reports duplicate package names.
func (rs Requirements) Validate() error {
	var result *multierror.Error
	for _, name := range rs.Duplicates() {
		var lines []string
		for _, r := range rs {
			if r.Key() == name {
				lines = append(lines, fmt.Sprintf("%d", r.Line))
			}
		}
		result = multierror.Append(result,
			fmt.Errorf("package %q listed more than once (lines %s)", name, strings.Join(lines, ", ")))
	}
	if err := result.ErrorOrNil(); err != nil {
		return &ValidationError{Subject: "requirements", Err: err}
	}
	return nil
}
