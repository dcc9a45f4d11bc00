package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

func newRequirementsCmd(out io.Writer, svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requirements",
		Aliases: []string{"reqs"},
		Short:   "check and install the python dependency file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [PACKAGE [VERSION]]",
			Short: "parse the dependency file and list its entries",
			Long: "Parse the dependency file and list its entries. With PACKAGE only that\n" +
				"entry is listed; with VERSION the command fails unless the entry allows it.",
			Args: cobra.MaximumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				reqs, err := svc().Packaging.CheckRequirements(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) > 0 {
					r, ok := reqs.Find(args[0])
					if !ok {
						return fmt.Errorf("package %q is not in the dependency file", args[0])
					}
					reqs = domain.Requirements{r}
				}
				printRequirements(out, reqs)
				if len(args) == 2 {
					return checkAllows(reqs[0], args[1])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "install",
			Short: "install the dependency file with pip",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return svc().Packaging.InstallRequirements(cmd.Context())
			},
		},
	)
	return cmd
}

func printRequirements(out io.Writer, reqs domain.Requirements) {
	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("LINE", "NAME", "KIND", "SPECIFIER", "CONSTRAINT", "PINNED", "SOURCE")
	for _, r := range reqs {
		source := r.Location
		if r.Ref != "" {
			source += "@" + r.Ref
		}
		constraint := "-"
		if r.Constraint != nil {
			constraint = r.Constraint.String()
		}
		pinned, ok := r.Pinned()
		if !ok {
			pinned = "-"
		}
		table.AddRow(r.Line, r.Name, r.Kind, r.Specifier, constraint, pinned, source)
	}
	fmt.Fprintln(out, table)
}

func checkAllows(r domain.Requirement, version string) error {
	ok, err := r.Allows(version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("version %s of %s does not satisfy %q", version, r.Name, r.Specifier)
	}
	return nil
}

func newTestEnvCmd(out io.Writer, svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testenv",
		Short: "inspect and run the test environment",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "print the parsed test environment",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				env, err := svc().Packaging.LoadTestEnv(cmd.Context())
				if err != nil {
					return err
				}
				table := uitable.New()
				table.Wrap = true
				table.MaxColWidth = 80
				table.AddRow("ENVLIST:", strings.Join(env.EnvList, ", "))
				table.AddRow("DIR:", env.Dirname())
				table.AddRow("DEPS:", strings.Join(env.Deps, " "))
				table.AddRow("PASSENV:", strings.Join(env.PassEnv, " "))
				keys := make([]string, 0, len(env.SetEnv))
				for k := range env.SetEnv {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					table.AddRow("SETENV:", k+"="+env.SetEnv[k])
				}
				for i, argv := range env.Commands {
					table.AddRow(fmt.Sprintf("COMMAND %d:", i+1), strings.Join(argv, " "))
				}
				fmt.Fprintln(out, table)
				return nil
			},
		},
		&cobra.Command{
			Use:   "run [-- POSARGS...]",
			Short: "install the test dependencies and run the test commands",
			RunE: func(cmd *cobra.Command, args []string) error {
				return svc().Packaging.RunTests(cmd.Context(), args)
			},
		},
	)
	return cmd
}
