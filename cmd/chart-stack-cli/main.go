// Package main provides chart-stack, the command line client for the stack
// descriptor, the helm releases it produces and the python packaging files
// that sit next to it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nathantilsley/chart-stack/internal/platform/config"
	"github.com/nathantilsley/chart-stack/internal/platform/logger"
	"github.com/nathantilsley/chart-stack/internal/stack/container"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

const rootDesc = `
chart-stack installs and configures a Kubernetes application stack from a
single chart-of-charts descriptor.

Configuration comes from the environment (STACK_FILE, STACK_BASE_DIR,
STACK_GIT_REPO, HELM_BIN, KUBECONFIG, ...). Flags override it.
`

// services are the use cases the commands drive.
type services struct {
	Stack      ports.StackUseCase
	Repos      ports.RepositoryUseCase
	Charts     ports.ChartUseCase
	Namespaces ports.NamespaceUseCase
	Packaging  ports.PackagingUseCase
}

// settings are the global flags.
type settings struct {
	logLevel     string
	stackFile    string
	baseDir      string
	requirements string
	testEnv      string
}

// loader builds the services for one invocation and returns a cleanup func.
type loader func(ctx context.Context, s settings, out, errOut io.Writer) (*services, func(), error)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr, loadServices); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// execute runs one invocation. Whatever the loader built is released even
// when the command fails; cobra skips post-run hooks after an error.
func execute(ctx context.Context, args []string, out, errOut io.Writer, load loader) error {
	cmd, cleanup := newRootCmd(out, errOut, load)
	defer cleanup()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// newRootCmd returns the command tree and a func releasing the services
// loaded for the invocation.
func newRootCmd(out, errOut io.Writer, load loader) (*cobra.Command, func()) {
	var (
		s       settings
		svc     *services
		cleanup func()
	)

	cmd := &cobra.Command{
		Use:           "chart-stack",
		Short:         "manage a chart-of-charts Kubernetes stack",
		Long:          rootDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			svc, cleanup, err = load(cmd.Context(), s, out, errOut)
			return err
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := cmd.PersistentFlags()
	f.StringVar(&s.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVarP(&s.stackFile, "file", "f", "", "stack descriptor path, relative to the base directory")
	f.StringVar(&s.baseDir, "base-dir", "", "directory the stack files are read from")
	f.StringVar(&s.requirements, "requirements", "", "python dependency file")
	f.StringVar(&s.testEnv, "testenv", "", "test environment descriptor")

	get := func() *services { return svc }

	cmd.AddCommand(
		newValidateCmd(out, get),
		newRenderCmd(out, get),
		newDiffCmd(out, get),
		newApplyCmd(out, get),
		newRepoCmd(out, get),
		newChartCmd(out, get),
		newNamespaceCmd(out, get),
		newRequirementsCmd(out, get),
		newTestEnvCmd(out, get),
	)
	return cmd, func() {
		if cleanup != nil {
			cleanup()
		}
	}
}

// loadServices wires the real adapters. Background sync and auto-apply are
// server features and stay off here.
func loadServices(ctx context.Context, s settings, out, errOut io.Writer) (*services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	overrideConfig(&cfg, s)

	log := logger.NewWithWriter(errOut, cfg.LogLevel)

	c, err := container.New(ctx, cfg, log, container.Options{Stdout: out, Stderr: errOut})
	if err != nil {
		return nil, nil, fmt.Errorf("building container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close(context.Background())
		return nil, nil, fmt.Errorf("fetching stack source: %w", err)
	}

	cleanup := func() {
		if err := c.Close(context.Background()); err != nil {
			log.Warn("closing container", "error", err)
		}
	}
	return &services{
		Stack:      c.Stack,
		Repos:      c.Repos,
		Charts:     c.Charts,
		Namespaces: c.Namespaces,
		Packaging:  c.Packaging,
	}, cleanup, nil
}

func overrideConfig(cfg *config.Config, s settings) {
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	if s.stackFile != "" {
		cfg.StackFile = s.stackFile
	}
	if s.baseDir != "" {
		cfg.BaseDir = s.baseDir
	}
	if s.requirements != "" {
		cfg.RequirementsFile = s.requirements
	}
	if s.testEnv != "" {
		cfg.TestEnvFile = s.testEnv
	}
	cfg.AutoApply = false
	cfg.GitSyncInterval = 0
}
