package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/monitor"
)

func newSummaryCmd(a *app) *cobra.Command {
	var (
		output    string
		probePane bool
	)
	cmd := &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Show one session's digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			st, err := a.monitor()
			if err != nil {
				return err
			}
			view, err := st.Session(cmd.Context(), args[0], probePane)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, view, func(w io.Writer) error {
				return summaryTable(w, view)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	cmd.Flags().BoolVar(&probePane, "probe", true, "refine a running session from its tmux pane")
	return cmd
}

func summaryTable(w io.Writer, v monitor.SessionView) error {
	rows := [][2]string{
		{"id", v.ID},
		{"title", v.Title},
		{"group", v.GroupPath},
		{"project", v.ProjectPath},
		{"status", string(v.CoarseStatus)},
		{"attention", v.Attention.Label()},
		{"conversation", v.ConversationID},
		{"summary", deref(v.Summary)},
		{"prompt", deref(v.InitialPrompt)},
		{"last tool", deref(v.LastTool)},
		{"last text", deref(v.LastText)},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s:\t%s\n", r[0], orDash(truncate(r[1], 200))); err != nil {
			return err
		}
	}
	return nil
}
