package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/attention"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how many sessions need attention, per group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			st, err := a.monitor()
			if err != nil {
				return err
			}
			counts, err := st.Counts(cmd.Context())
			if err != nil {
				return err
			}
			if counts.Sessions == nil {
				counts.Sessions = []attention.Flagged{}
			}
			return render(cmd.OutOrStdout(), output, counts, func(w io.Writer) error {
				return statusTable(w, counts)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func statusTable(w io.Writer, counts attention.Counts) error {
	if counts.Total == 0 {
		_, err := fmt.Fprintln(w, "No sessions need attention.")
		return err
	}
	fmt.Fprintf(w, "%d session(s) need attention\n\n", counts.Total)
	groups := make([]string, 0, len(counts.Groups))
	for g := range counts.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	fmt.Fprintln(w, "GROUP\tSTATE")
	for _, g := range groups {
		fmt.Fprintf(w, "%s\t%s\n", orDash(g), counts.Groups[g])
	}
	return nil
}
