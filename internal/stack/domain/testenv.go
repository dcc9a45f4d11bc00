package domain

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// TestEnv is the test environment descriptor: which runtime environments are
// supported, which commands to run and with which environment.
type TestEnv struct {
	EnvList  []string          // e.g. ["py38"]
	Commands [][]string        // argv per command, in order
	SetEnv   map[string]string // injected variables
	PassEnv  []string          // names or glob patterns copied from the caller
	Deps     []string          // dependency lines, "-r<file>" references included
	Dir      string            // directory of the descriptor, used for {toxinidir}
	WorkDir  string            // where commands run; defaults to Dir
}

// CommandLines expands the posargs placeholder of every command. A bare
// "{posargs}" argument is replaced by posargs; "{posargs:default}" falls
// back to its default when posargs is empty.
func (t TestEnv) CommandLines(posargs []string) [][]string {
	out := make([][]string, 0, len(t.Commands))
	for _, argv := range t.Commands {
		line := make([]string, 0, len(argv)+len(posargs))
		for _, arg := range argv {
			switch {
			case arg == "{posargs}":
				line = append(line, posargs...)
			case strings.HasPrefix(arg, "{posargs:") && strings.HasSuffix(arg, "}"):
				if len(posargs) > 0 {
					line = append(line, posargs...)
				} else if def := arg[len("{posargs:") : len(arg)-1]; def != "" {
					line = append(line, def)
				}
			default:
				line = append(line, arg)
			}
		}
		out = append(out, line)
	}
	return out
}

// Dirname returns the directory the commands run in.
func (t TestEnv) Dirname() string {
	if t.WorkDir != "" {
		return t.WorkDir
	}
	return t.Dir
}

// Environment builds the process environment for the test commands: only
// variables matching PassEnv are copied from base, then SetEnv is applied on
// top. The result is sorted by name.
func (t TestEnv) Environment(base []string) []string {
	matchers := make([]glob.Glob, 0, len(t.PassEnv))
	for _, p := range t.PassEnv {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		matchers = append(matchers, g)
	}

	env := make(map[string]string)
	for _, kv := range base {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, m := range matchers {
			if m.Match(name) {
				env[name] = value
				break
			}
		}
	}
	for k, v := range t.SetEnv {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// RequirementFiles returns the dependency files referenced by "-r" deps.
func (t TestEnv) RequirementFiles() []string {
	var files []string
	for _, d := range t.Deps {
		d = strings.TrimSpace(d)
		if !strings.HasPrefix(d, "-r") {
			continue
		}
		if f := strings.TrimSpace(strings.TrimPrefix(d, "-r")); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// Command is a single external process invocation.
type Command struct {
	Name string
	Args []string
	Env  []string // nil inherits the caller's environment
	Dir  string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}
