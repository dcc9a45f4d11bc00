// Package toxini reads the test environment from a tox.ini file.
package toxini

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"gopkg.in/ini.v1"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Parser implements ports.TestEnvParserPort.
type Parser struct {
	python string
}

// New creates a tox.ini parser. python is substituted for {envpython}.
func New(python string) *Parser {
	if python == "" {
		python = "python"
	}
	return &Parser{python: python}
}

// Parse reads the [tox] and [testenv] sections. {toxinidir} and {envpython}
// are substituted here; {posargs} is left for run time.
func (p *Parser) Parse(data []byte, dir string) (domain.TestEnv, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
		IgnoreContinuation:         true,
	}, data)
	if err != nil {
		return domain.TestEnv{}, fmt.Errorf("parsing tox.ini: %w", err)
	}
	if !cfg.HasSection("testenv") {
		return domain.TestEnv{}, fmt.Errorf("parsing tox.ini: no [testenv] section")
	}

	subst := strings.NewReplacer(
		"{toxinidir}", dir,
		"{envpython}", p.python,
	)

	env := domain.TestEnv{Dir: dir, SetEnv: map[string]string{}}
	env.EnvList = splitList(cfg.Section("tox").Key("envlist").String())

	sec := cfg.Section("testenv")
	for i, line := range logicalLines(sec.Key("commands").String()) {
		argv, err := shellwords.Parse(subst.Replace(line))
		if err != nil {
			return domain.TestEnv{}, fmt.Errorf("parsing tox.ini: command %d: %w", i+1, err)
		}
		if len(argv) > 0 {
			env.Commands = append(env.Commands, argv)
		}
	}

	for _, line := range logicalLines(sec.Key("setenv").String()) {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return domain.TestEnv{}, fmt.Errorf("parsing tox.ini: setenv entry %q has no '='", line)
		}
		env.SetEnv[strings.TrimSpace(name)] = subst.Replace(strings.TrimSpace(value))
	}

	env.PassEnv = splitList(sec.Key("passenv").String())
	for _, line := range logicalLines(sec.Key("deps").String()) {
		env.Deps = append(env.Deps, subst.Replace(line))
	}

	if cd := subst.Replace(sec.Key("changedir").String()); cd != "" {
		if !filepath.IsAbs(cd) {
			cd = filepath.Join(dir, cd)
		}
		env.WorkDir = cd
	}
	return env, nil
}

// logicalLines splits a multiline value into non-empty lines, joining lines
// that end with a backslash.
func logicalLines(value string) []string {
	var (
		out     []string
		pending string
	)
	for _, raw := range strings.Split(value, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`) + " "
			continue
		}
		line = strings.TrimSpace(pending + line)
		pending = ""
		if line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if p := strings.TrimSpace(pending); p != "" {
		out = append(out, p)
	}
	return out
}

// splitList splits on commas and whitespace.
func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}
