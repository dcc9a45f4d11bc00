// Package requirementsfile parses pip requirements files.
package requirementsfile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Parser implements ports.RequirementsParserPort.
type Parser struct{}

// New creates a requirements file parser.
func New() *Parser {
	return &Parser{}
}

var (
	packageLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[([^\]]*)\])?\s*(.*)$`)
	specifier   = regexp.MustCompile(`^\s*(===|==|~=|!=|<=|>=|<|>)\s*[A-Za-z0-9.*+!_-]+\s*$`)
	eggFragment = regexp.MustCompile(`#egg=([A-Za-z0-9._-]+)`)
	inlineNote  = regexp.MustCompile(`\s+#.*$`)
)

// Parse reads one specifier per line. Blank lines reset the pending comment
// block; comment lines accumulate and attach to the next entry.
func (p *Parser) Parse(r io.Reader) (domain.Requirements, error) {
	var (
		reqs    domain.Requirements
		comment []string
		lineNo  int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			comment = nil
			continue
		case strings.HasPrefix(line, "#"):
			comment = append(comment, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}

		line = strings.TrimSpace(inlineNote.ReplaceAllString(line, ""))
		req, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %q: %w", lineNo, raw, err)
		}
		req.Line = lineNo
		req.Raw = raw
		req.Comment = strings.Join(comment, "\n")
		comment = nil
		reqs = append(reqs, req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements: %w", err)
	}
	return reqs, nil
}

func parseLine(line string) (domain.Requirement, error) {
	if strings.HasPrefix(line, "-e ") || strings.HasPrefix(line, "--editable ") {
		_, target, _ := strings.Cut(line, " ")
		return parseEditable(strings.Trim(strings.TrimSpace(target), `"'`))
	}
	if strings.HasPrefix(line, "-") {
		return domain.Requirement{}, fmt.Errorf("unsupported option")
	}
	if vcs, _, ok := strings.Cut(line, "+"); ok && isVCS(vcs) {
		return parseVCS(line)
	}
	return parsePackage(line)
}

func parseEditable(target string) (domain.Requirement, error) {
	if target == "" {
		return domain.Requirement{}, fmt.Errorf("editable install without a target")
	}
	if vcs, _, ok := strings.Cut(target, "+"); ok && isVCS(vcs) {
		req, err := parseVCS(target)
		req.Kind = domain.KindEditable
		return req, err
	}

	req := domain.Requirement{Kind: domain.KindEditable, Location: target}
	if i := strings.Index(target, "["); i >= 0 && strings.HasSuffix(target, "]") {
		req.Location = target[:i]
		req.Extras = splitExtras(target[i+1 : len(target)-1])
	}
	return req, nil
}

func parseVCS(line string) (domain.Requirement, error) {
	vcs, rest, _ := strings.Cut(line, "+")
	req := domain.Requirement{Kind: domain.KindVCS, VCS: vcs}

	m := eggFragment.FindStringSubmatch(rest)
	if m == nil {
		return req, fmt.Errorf("vcs reference without #egg=<name>")
	}
	req.Name = m[1]
	url, _, _ := strings.Cut(rest, "#")

	// The ref follows the last '@' of the path, not the one of user@host.
	if i := strings.LastIndex(url, "@"); i > strings.Index(url, "://")+2 && !strings.Contains(url[i:], "/") {
		req.Ref = url[i+1:]
		url = url[:i]
	}
	req.Location = url
	return req, nil
}

func parsePackage(line string) (domain.Requirement, error) {
	// Environment markers are not evaluated.
	line, _, _ = strings.Cut(line, ";")
	m := packageLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return domain.Requirement{}, fmt.Errorf("not a package specifier")
	}
	req := domain.Requirement{
		Kind:      domain.KindPackage,
		Name:      m[1],
		Extras:    splitExtras(m[2]),
		Specifier: strings.ReplaceAll(strings.TrimSpace(m[3]), " ", ""),
	}
	if req.Specifier == "" {
		return req, nil
	}
	for _, part := range strings.Split(req.Specifier, ",") {
		if !specifier.MatchString(part) {
			return domain.Requirement{}, fmt.Errorf("invalid version specifier %q", part)
		}
	}
	req.Constraint = toConstraint(req.Specifier)
	return req, nil
}

// toConstraint maps a PEP 440 specifier onto semver constraint syntax. It
// returns nil when the versions are not semver expressible.
func toConstraint(spec string) *semver.Constraints {
	parts := strings.Split(spec, ",")
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, "==="):
			parts[i] = "=" + p[3:]
		case strings.HasPrefix(p, "=="):
			parts[i] = "=" + p[2:]
		case strings.HasPrefix(p, "~="):
			r, ok := compatibleRange(p[2:])
			if !ok {
				return nil
			}
			parts[i] = r
		}
	}
	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return nil
	}
	return c
}

// compatibleRange expands "~=X.Y.Z" into ">=X.Y.Z, <X.(Y+1)".
func compatibleRange(v string) (string, bool) {
	fields := strings.Split(v, ".")
	if len(fields) < 2 {
		return "", false
	}
	upper := fields[:len(fields)-1]
	last, err := strconv.Atoi(upper[len(upper)-1])
	if err != nil {
		return "", false
	}
	upper[len(upper)-1] = strconv.Itoa(last + 1)
	return ">=" + v + ", <" + strings.Join(upper, "."), true
}

func splitExtras(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func isVCS(s string) bool {
	switch s {
	case "git", "hg", "svn", "bzr":
		return true
	}
	return false
}
