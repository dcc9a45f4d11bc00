package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newRepoCmd(out io.Writer, svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repo",
		Aliases: []string{"repository"},
		Short:   "add, list and update chart repositories",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add [NAME] [URL]",
			Short: "add a chart repository",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := svc().Repos.Add(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%q has been added to your repositories\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "list chart repositories",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				repos, err := svc().Repos.List(cmd.Context())
				if err != nil {
					return err
				}
				table := uitable.New()
				table.AddRow("NAME", "URL")
				for _, r := range repos {
					table.AddRow(r.Name, r.URL)
				}
				fmt.Fprintln(out, table)
				return nil
			},
		},
		&cobra.Command{
			Use:   "update",
			Short: "refresh the index of every chart repository",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := svc().Repos.Update(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Update Complete.")
				return nil
			},
		},
	)
	return cmd
}

func newChartCmd(out io.Writer, svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chart",
		Aliases: []string{"charts"},
		Short:   "inspect and manage installed charts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "list installed charts",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				releases, err := svc().Charts.List(cmd.Context())
				if err != nil {
					return err
				}
				table := uitable.New()
				table.MaxColWidth = 40
				table.AddRow("ID", "NAME", "NAMESPACE", "VERSION", "REVISION", "STATE", "ACCESS")
				for _, r := range releases {
					table.AddRow(r.ID, r.DisplayName(), r.Namespace, r.ChartVersion, r.Revision, r.State, r.AccessAddress())
				}
				fmt.Fprintln(out, table)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get [ID]",
			Short: "show an installed chart and its computed values",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := svc().Charts.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				table := uitable.New()
				table.AddRow("ID:", r.ID)
				table.AddRow("NAME:", r.DisplayName())
				table.AddRow("NAMESPACE:", r.Namespace)
				table.AddRow("VERSION:", r.ChartVersion)
				table.AddRow("APP VERSION:", r.AppVersion)
				table.AddRow("REVISION:", r.Revision)
				table.AddRow("STATE:", r.State)
				table.AddRow("ACCESS:", r.AccessAddress())
				fmt.Fprintln(out, table)

				values, err := yaml.Marshal(r.Values)
				if err != nil {
					return fmt.Errorf("encoding values: %w", err)
				}
				fmt.Fprintf(out, "VALUES:\n%s", values)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rollback [ID] [REVISION]",
			Short: "roll a chart back, to the previous revision by default",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				revision := 0
				if len(args) == 2 {
					n, err := strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("could not convert revision to a number: %w", err)
					}
					revision = n
				}
				r, err := svc().Charts.Rollback(cmd.Context(), args[0], revision)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rollback was a success! %s is now at revision %d.\n", r.ID, r.Revision)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete [ID]",
			Short: "uninstall a chart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := svc().Charts.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "release %q uninstalled\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newNamespaceCmd(out io.Writer, svc func() *services) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "namespace",
		Aliases: []string{"ns"},
		Short:   "list, create and delete kubernetes namespaces",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "list namespaces",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				nss, err := svc().Namespaces.List(cmd.Context())
				if err != nil {
					return err
				}
				table := uitable.New()
				table.AddRow("NAME", "STATUS", "AGE")
				for _, ns := range nss {
					table.AddRow(ns.Name, ns.Status, ns.Age)
				}
				fmt.Fprintln(out, table)
				return nil
			},
		},
		&cobra.Command{
			Use:   "create [NAME]",
			Short: "create a namespace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ns, err := svc().Namespaces.Create(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "namespace/%s created\n", ns.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete [NAME]",
			Short: "delete a namespace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := svc().Namespaces.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "namespace %q deleted\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
