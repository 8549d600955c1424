package monitor

import (
	"time"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/summary"
	"github.com/orcadeck/orca/internal/tmux"
	"github.com/orcadeck/orca/internal/transcript"
)

// Stack is a Service plus the pieces it was built from, for callers that
// also need the probe or the transcript root.
type Stack struct {
	*Service
	Profile     string
	StateDBPath string
	Transcripts *transcript.Store
	Classifier  *attention.Classifier
	Probe       *tmux.Probe
}

// FromConfig wires a Service from config.toml for an agent-deck profile.
// prompts may be nil.
func FromConfig(profile string, prompts summary.PromptStore) (*Stack, error) {
	profile = config.GetEffectiveProfile(profile)
	dbPath, err := config.GetStateDBPath(profile)
	if err != nil {
		return nil, err
	}

	a := config.GetAttentionSettings()
	probe := tmux.NewProbe(nil, a.PaneLines, tmux.CompileMarkers(a.PromptMarkers))
	classifier := attention.New(attention.Options{
		Strategy:         a.Strategy,
		StaleAfter:       time.Duration(a.StaleAfterSeconds) * time.Second,
		InteractiveTools: a.InteractiveTools,
		TailBytes:        a.TailBytes,
		Probe:            probe,
	})
	store := transcript.NewStore("")
	builder := summary.NewBuilder(store, classifier, prompts, a.HeadBytes)

	svc := New(Options{
		Open:        ReadOnlyOpener(dbPath),
		Builder:     builder,
		Classifier:  classifier,
		Source:      store,
		MaxParallel: a.MaxParallel,
	})
	return &Stack{
		Service:     svc,
		Profile:     profile,
		StateDBPath: dbPath,
		Transcripts: store,
		Classifier:  classifier,
		Probe:       probe,
	}, nil
}
