package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/attention"
)

type classifyResult struct {
	ProjectPath    string           `json:"project_path" yaml:"project_path"`
	ConversationID string           `json:"conversation_id" yaml:"conversation_id"`
	Coarse         string           `json:"coarse_status" yaml:"coarse_status"`
	Transcript     string           `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Strategy       string           `json:"strategy" yaml:"strategy"`
	Attention      attention.Status `json:"attention" yaml:"attention"`
}

// newClassifyCmd classifies a session that is not (or not yet) in
// state.db, straight from its project path and conversation id.
func newClassifyCmd(a *app) *cobra.Command {
	var (
		output       string
		project      string
		conversation string
		coarse       string
		pane         string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one transcript without consulting state.db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			if project == "" {
				return errors.New("--project is required")
			}
			st, err := a.monitor()
			if err != nil {
				return err
			}
			res := classifyResult{
				ProjectPath:    project,
				ConversationID: conversation,
				Coarse:         coarse,
				Strategy:       st.Classifier.StrategyName(),
			}
			if path, ok := st.Transcripts.Locate(project, conversation); ok {
				res.Transcript = path
			}
			res.Attention = st.Classifier.Assess(cmd.Context(), st.Transcripts, attention.Target{
				Coarse:         attention.ParseCoarse(coarse),
				ProjectPath:    project,
				ConversationID: conversation,
				Pane:           pane,
			})
			return render(cmd.OutOrStdout(), output, res, func(w io.Writer) error {
				fmt.Fprintf(w, "attention:\t%s\n", res.Attention.Label())
				fmt.Fprintf(w, "strategy:\t%s\n", res.Strategy)
				_, err := fmt.Fprintf(w, "transcript:\t%s\n", orDash(res.Transcript))
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	f.StringVar(&project, "project", "", "project directory the agent runs in")
	f.StringVar(&conversation, "conversation", "", "conversation id (transcript file name without .jsonl)")
	f.StringVar(&coarse, "status", string(attention.CoarseWaiting), "supervisor status: running, waiting, error or idle")
	f.StringVar(&pane, "pane", "", "tmux target to probe when the session is running")
	return cmd
}
