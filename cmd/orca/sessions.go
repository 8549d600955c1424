package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/monitor"
)

type viewSource []monitor.SessionView

func (s viewSource) String(i int) string { return s[i].Title + " " + s[i].GroupPath + " " + s[i].ProjectPath }
func (s viewSource) Len() int            { return len(s) }

// fuzzyMatch keeps the views matching query, in their original order.
func fuzzyMatch(views []monitor.SessionView, query string) []monitor.SessionView {
	if query == "" {
		return views
	}
	matches := fuzzy.FindFrom(query, viewSource(views))
	idx := make([]int, 0, len(matches))
	for _, m := range matches {
		idx = append(idx, m.Index)
	}
	sort.Ints(idx)
	out := make([]monitor.SessionView, 0, len(idx))
	for _, i := range idx {
		out = append(out, views[i])
	}
	return out
}

func newSessionsCmd(a *app) *cobra.Command {
	var (
		output    string
		group     string
		match     string
		statuses  string
		probePane bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with their attention status and summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			wanted, err := attention.ParseStatusList(statuses)
			if err != nil {
				return err
			}
			st, err := a.monitor()
			if err != nil {
				return err
			}
			views, err := st.Sessions(cmd.Context(), monitor.Filter{Group: group, Attention: wanted, Probe: probePane})
			if err != nil {
				return err
			}
			views = fuzzyMatch(views, match)
			if views == nil {
				views = []monitor.SessionView{}
			}
			return render(cmd.OutOrStdout(), output, views, func(w io.Writer) error {
				return sessionsTable(w, views, terminalWidth())
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	f.StringVarP(&group, "group", "g", "", `group glob, e.g. "work/**"`)
	f.StringVarP(&match, "match", "m", "", "fuzzy match on title, group and project")
	f.StringVarP(&statuses, "attention", "a", "", "comma-separated statuses to keep (needs_input,error,running,idle,stale,unknown)")
	f.BoolVar(&probePane, "probe", false, "refine running sessions from their tmux pane")
	return cmd
}

func sessionsTable(w io.Writer, views []monitor.SessionView, width int) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}
	detail := width - 70
	if detail < 20 {
		detail = 20
	}
	fmt.Fprintln(w, "ID\tTITLE\tGROUP\tATTENTION\tLAST")
	for _, v := range views {
		last := deref(v.LastText)
		if v.LastTool != nil {
			last = "⚙ " + *v.LastTool
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(v.ID, 12),
			truncate(v.Title, 24),
			orDash(truncate(v.GroupPath, 20)),
			v.Attention.Label(),
			orDash(truncate(last, detail)))
	}
	return nil
}
