package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

// alwaysPassed are copied into the test environment regardless of passenv,
// the same way tox does.
var alwaysPassed = []string{"PATH", "HOME", "LANG", "LANGUAGE", "LC_*", "TMPDIR", "PIP_*", "VIRTUAL_ENV"}

// PackagingDeps are the driven ports used by PackagingService.
type PackagingDeps struct {
	Source           ports.SourcePort
	RequirementsPath string
	TestEnvPath      string
	BaseDir          string // working directory for pip and the tests
	Requirements     ports.RequirementsParserPort
	TestEnv          ports.TestEnvParserPort
	Runner           ports.CommandRunnerPort
	Pip              string
	Environ          func() []string
}

// PackagingService implements ports.PackagingUseCase.
type PackagingService struct {
	deps   PackagingDeps
	logger *slog.Logger
}

// NewPackagingService creates a PackagingService.
func NewPackagingService(deps PackagingDeps, logger *slog.Logger) *PackagingService {
	if deps.Pip == "" {
		deps.Pip = "pip"
	}
	if deps.Environ == nil {
		deps.Environ = os.Environ
	}
	return &PackagingService{deps: deps, logger: logger}
}

// CheckRequirements parses the dependency file and rejects duplicates.
func (s *PackagingService) CheckRequirements(ctx context.Context) (domain.Requirements, error) {
	data, err := s.deps.Source.ReadFile(ctx, s.deps.RequirementsPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.deps.RequirementsPath, err)
	}
	reqs, err := s.deps.Requirements.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.ValidationError{Subject: s.deps.RequirementsPath, Err: err}
	}
	if err := reqs.Validate(); err != nil {
		return reqs, err
	}
	return reqs, nil
}

// InstallRequirements checks the dependency file and hands it to pip, which
// installs the entries in file order.
func (s *PackagingService) InstallRequirements(ctx context.Context) error {
	reqs, err := s.CheckRequirements(ctx)
	if err != nil {
		return err
	}
	data, err := s.deps.Source.ReadFile(ctx, s.deps.RequirementsPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.deps.RequirementsPath, err)
	}

	path, cleanup, err := writeTemp(data)
	if err != nil {
		return err
	}
	defer cleanup()

	s.logger.Info("installing requirements", "file", s.deps.RequirementsPath, "packages", reqs.Names())
	return s.deps.Runner.Run(ctx, domain.Command{
		Name: s.deps.Pip,
		Args: []string{"install", "-r", path},
		Dir:  s.deps.BaseDir,
	})
}

// LoadTestEnv parses the test environment descriptor.
func (s *PackagingService) LoadTestEnv(ctx context.Context) (domain.TestEnv, error) {
	data, err := s.deps.Source.ReadFile(ctx, s.deps.TestEnvPath)
	if err != nil {
		return domain.TestEnv{}, fmt.Errorf("reading %s: %w", s.deps.TestEnvPath, err)
	}
	env, err := s.deps.TestEnv.Parse(data, s.deps.BaseDir)
	if err != nil {
		return domain.TestEnv{}, &domain.ValidationError{Subject: s.deps.TestEnvPath, Err: err}
	}
	return env, nil
}

// RunTests installs the test dependencies and runs every command in order
// with the test environment. The first failing command stops the run.
func (s *PackagingService) RunTests(ctx context.Context, posargs []string) error {
	env, err := s.LoadTestEnv(ctx)
	if err != nil {
		return err
	}
	env.PassEnv = append(append([]string{}, alwaysPassed...), env.PassEnv...)
	environ := env.Environment(s.deps.Environ())

	if args := depsArgs(env); len(args) > 0 {
		err := s.deps.Runner.Run(ctx, domain.Command{
			Name: s.deps.Pip,
			Args: append([]string{"install"}, args...),
			Env:  environ,
			Dir:  env.Dir,
		})
		if err != nil {
			return fmt.Errorf("installing test dependencies: %w", err)
		}
	}

	for i, argv := range env.CommandLines(posargs) {
		if len(argv) == 0 {
			continue
		}
		s.logger.Info("running test command", "step", i+1, "command", argv[0])
		err := s.deps.Runner.Run(ctx, domain.Command{
			Name: argv[0],
			Args: argv[1:],
			Env:  environ,
			Dir:  env.Dirname(),
		})
		if err != nil {
			return fmt.Errorf("test command %d: %w", i+1, err)
		}
	}
	return nil
}

// depsArgs turns the deps list into pip arguments, resolving "-r" files
// against the descriptor directory.
func depsArgs(env domain.TestEnv) []string {
	var args []string
	for _, f := range env.RequirementFiles() {
		if !filepath.IsAbs(f) {
			f = filepath.Join(env.Dir, f)
		}
		args = append(args, "-r", f)
	}
	for _, d := range env.Deps {
		if strings.HasPrefix(strings.TrimSpace(d), "-r") {
			continue
		}
		args = append(args, d)
	}
	return args
}

func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "chart-stack-requirements-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp requirements file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temp requirements file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing temp requirements file: %w", err)
	}
	return f.Name(), cleanup, nil
}
