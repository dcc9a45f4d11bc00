package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

const applyDesc = `
This command reconciles the cluster with the stack descriptor: every declared
repository is registered, then every chart is installed or upgraded in
document order. A failing chart does not stop the others.

Use '--dry-run' (or the 'diff' command) to see what would change.
`

func newValidateCmd(out io.Writer, svc func() *services) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "check the stack descriptor against its schema and rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := svc().Stack.Validate(cmd.Context())
			if err != nil {
				return err
			}
			if !report.Valid() {
				for _, e := range report.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
				return fmt.Errorf("stack descriptor is invalid: %d problem(s)", len(report.Errors))
			}
			fmt.Fprintf(out, "stack descriptor is valid: %d repositories, %d charts\n",
				len(report.Descriptor.Repositories), len(report.Descriptor.Charts))
			return nil
		},
	}
}

func newRenderCmd(out io.Writer, svc func() *services) *cobra.Command {
	var (
		only      string
		manifests bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "print the final values of every chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if manifests {
				docs, err := svc().Stack.Template(cmd.Context(), only)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(docs))
				for k := range docs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "# Chart: %s\n%s", k, docs[k])
				}
				return nil
			}

			rendered, err := svc().Stack.Render(cmd.Context(), only)
			if err != nil {
				return err
			}
			for _, rc := range rendered {
				fmt.Fprintf(out, "---\n# Chart: %s (%s)\n%s", rc.Entry.Key, rc.Entry.Name, rc.YAML)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "glob selecting chart keys")
	cmd.Flags().BoolVar(&manifests, "manifests", false, "render full kubernetes manifests with helm template")
	return cmd
}

func newDiffCmd(out io.Writer, svc func() *services) *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "show how the live releases differ from the stack descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := svc().Stack.Apply(cmd.Context(), domain.ApplyOptions{DryRun: true, Only: only})
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Diff != "" {
					fmt.Fprintln(out, r.Diff)
				}
			}
			return writeResults(out, results)
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "glob selecting chart keys")
	return cmd
}

func newApplyCmd(out io.Writer, svc func() *services) *cobra.Command {
	var opts domain.ApplyOptions
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "install or upgrade every chart of the stack",
		Long:  applyDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := svc().Stack.Apply(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeResults(out, results)
		},
	}
	cmd.Flags().StringVar(&opts.Only, "only", "", "glob selecting chart keys")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without touching the cluster")
	return cmd
}

// writeResults prints the per-chart table and fails when any chart failed.
func writeResults(out io.Writer, results []domain.ApplyResult) error {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("CHART", "RELEASE", "NAMESPACE", "STATUS", "SUMMARY")
	for _, r := range results {
		table.AddRow(r.ChartKey, r.Release, r.Namespace, colorizeStatus(out, r.Status), r.Summary)
	}
	fmt.Fprintln(out, table)

	unchanged, changed, failed := domain.CountByStatus(results)
	fmt.Fprintf(out, "\n%d unchanged, %d changed, %d failed\n", unchanged, changed, failed)
	if failed > 0 {
		return errors.New("some charts failed to apply")
	}
	return nil
}

// colorizeStatus colors the status only when writing to a color-capable stdout.
func colorizeStatus(out io.Writer, status domain.Status) string {
	if f, ok := out.(*os.File); !ok || f != os.Stdout || color.NoColor {
		return status.String()
	}
	switch status {
	case domain.StatusChanged:
		return color.YellowString(status.String())
	case domain.StatusError:
		return color.RedString(status.String())
	default:
		return color.GreenString(status.String())
	}
}
