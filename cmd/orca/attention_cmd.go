package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/attention"
)

func newAttentionCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "attention",
		Short: "List the sessions that need attention, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			st, err := a.monitor()
			if err != nil {
				return err
			}
			flagged, err := st.Attention(cmd.Context())
			if err != nil {
				return err
			}
			if flagged == nil {
				flagged = []attention.Flagged{}
			}
			return render(cmd.OutOrStdout(), output, flagged, func(w io.Writer) error {
				return attentionTable(w, flagged)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func attentionTable(w io.Writer, flagged []attention.Flagged) error {
	if len(flagged) == 0 {
		_, err := fmt.Fprintln(w, "No sessions need attention.")
		return err
	}
	fmt.Fprintln(w, "ID\tTITLE\tGROUP\tATTENTION")
	for _, f := range flagged {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(f.SessionID, 12),
			orDash(truncate(f.Title, 32)),
			orDash(f.GroupPath),
			f.Status.Label())
	}
	return nil
}
