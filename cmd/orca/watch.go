package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/ui"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		group   string
		noProbe bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.monitor()
			if err != nil {
				return err
			}
			s := config.GetUISettings()
			ui.InitColorProfile()
			ui.InitTheme(config.ResolveTheme())

			opts := ui.Options{
				Profile:         st.Profile,
				Source:          st,
				Group:           group,
				Refresh:         time.Duration(s.RefreshSeconds) * time.Second,
				ProbesPerSecond: s.ProbesPerSecond,
				Theme:           s.Theme,
			}
			if !noProbe {
				opts.Probe = st.Probe
			}
			return ui.Run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", `only show groups matching this glob, e.g. "work/**"`)
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "do not inspect tmux panes of running sessions")
	return cmd
}
