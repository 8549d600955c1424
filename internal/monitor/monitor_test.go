package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/statedb"
	"github.com/orcadeck/orca/internal/summary"
	"github.com/orcadeck/orca/internal/transcript"
)

type stubProbe struct{ panes map[string]bool }

func (p stubProbe) WaitingForInput(_ context.Context, pane string) bool { return p.panes[pane] }

type fixture struct {
	dbPath string
	root   string
}

func writeTranscript(t *testing.T, root, project, id string, lines ...string) {
	t.Helper()
	dir := filepath.Join(root, transcript.EncodeProjectDir(project))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dbPath: filepath.Join(dir, "state.db"), root: filepath.Join(dir, "projects")}

	db, err := statedb.Open(f.dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	now := time.Unix(1_700_000_000, 0)
	for _, r := range []*statedb.InstanceRow{
		{ID: "s-wait", Title: "api", ProjectPath: "/src/api", GroupPath: "work/api", Status: "waiting", CreatedAt: now,
			ToolData: json.RawMessage(`{"claude_session_id":"c-wait"}`)},
		{ID: "s-run", Title: "web", ProjectPath: "/src/web", GroupPath: "work/web", Order: 1, Status: "running", CreatedAt: now,
			TmuxSession: "agentdeck_web", ToolData: json.RawMessage(`{"claude_session_id":"c-run"}`)},
		{ID: "s-err", Title: "ops", ProjectPath: "/src/ops", GroupPath: "infra", Status: "error", CreatedAt: now},
		{ID: "s-fresh", Title: "new", ProjectPath: "/src/new", GroupPath: "work/api", Order: 2, Status: "waiting", CreatedAt: now,
			ToolData: json.RawMessage(`{"claude_session_id":"c-fresh"}`)},
	} {
		require.NoError(t, db.SaveInstance(r))
	}
	require.NoError(t, db.SaveGroups([]*statedb.GroupRow{{Path: "work/api", Name: "api"}, {Path: "infra", Name: "infra", Order: 1}}))
	require.NoError(t, db.Close())

	writeTranscript(t, f.root, "/src/api", "c-wait",
		`{"type":"user","message":{"role":"user","content":"add tests"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Which framework?"}]}}`)
	writeTranscript(t, f.root, "/src/web", "c-run",
		`{"type":"user","message":{"role":"user","content":"deploy"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t","name":"Bash"}]}}`)
	writeTranscript(t, f.root, "/src/new", "c-fresh",
		`{"type":"user","message":{"role":"user","content":"hello"}}`)
	return f
}

func newService(f fixture, probe attention.PaneProbe) *Service {
	store := transcript.NewStore(f.root)
	c := attention.New(attention.Options{Probe: probe, Now: func() time.Time { return time.Unix(1_700_000_100, 0) }})
	return New(Options{
		Open:       ReadOnlyOpener(f.dbPath),
		Builder:    summary.NewBuilder(store, c, nil, 0),
		Classifier: c,
		Source:     store,
	})
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, stubProbe{panes: map[string]bool{"agentdeck_web": true}})

	views, err := svc.Sessions(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, views, 4)

	byID := map[string]SessionView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.Equal(t, attention.NeedsInput, byID["s-wait"].Attention)
	assert.Equal(t, attention.Running, byID["s-run"].Attention, "no probe without Filter.Probe")
	assert.Equal(t, attention.Error, byID["s-err"].Attention)
	assert.Equal(t, attention.Idle, byID["s-fresh"].Attention)
	require.NotNil(t, byID["s-wait"].LastText)
	assert.Equal(t, "Which framework?", *byID["s-wait"].LastText)
	assert.Equal(t, "c-run", byID["s-run"].ConversationID)

	views, err = svc.Sessions(context.Background(), Filter{Probe: true, Attention: []attention.Status{attention.NeedsInput}})
	require.NoError(t, err)
	var ids []string
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	assert.ElementsMatch(t, []string{"s-wait", "s-run"}, ids)
}

func TestSessionsGroupGlob(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, nil)

	views, err := svc.Sessions(context.Background(), Filter{Group: "work/*"})
	require.NoError(t, err)
	assert.Len(t, views, 3)

	views, err = svc.Sessions(context.Background(), Filter{Group: "work"})
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = svc.Sessions(context.Background(), Filter{Group: "work/[a"})
	assert.Error(t, err)
}

func TestSessionByID(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, stubProbe{panes: map[string]bool{"agentdeck_web": true}})

	v, err := svc.Session(context.Background(), "s-run", true)
	require.NoError(t, err)
	assert.Equal(t, attention.NeedsInput, v.Attention)
	require.NotNil(t, v.LastTool)
	assert.Equal(t, "Bash", *v.LastTool)

	_, err = svc.Session(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCountsAndAttention(t *testing.T) {
	f := newFixture(t)
	svc := newService(f, nil)

	counts, err := svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, map[string]string{"work/api": attention.GroupWaiting, "infra": attention.GroupError}, counts.Groups)

	flagged, err := svc.Attention(context.Background())
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, "s-err", flagged[0].SessionID)
	assert.Equal(t, "s-wait", flagged[1].SessionID)
}

func TestGroups(t *testing.T) {
	f := newFixture(t)
	groups, err := newService(f, nil).Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "work/api", groups[0].Path)
}

func TestMissingStateDB(t *testing.T) {
	svc := newService(fixture{dbPath: filepath.Join(t.TempDir(), "none.db")}, nil)
	_, err := svc.Counts(context.Background())
	assert.ErrorIs(t, err, statedb.ErrNotFound)
}

func TestFromConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ORCA_HOME", home)
	t.Setenv("AGENTDECK_PROFILE", "")
	t.Setenv("CLAUDE_CONFIG_DIR", "")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(`
[attention]
strategy = "pending-tool"
[paths]
agent_deck_dir = "`+filepath.Join(home, "deck")+`"
claude_dir = "`+filepath.Join(home, "claude")+`"
`), 0o600))
	config.ClearCache()
	t.Cleanup(config.ClearCache)

	st, err := FromConfig("team", nil)
	require.NoError(t, err)
	assert.Equal(t, "team", st.Profile)
	assert.Equal(t, filepath.Join(home, "deck", "profiles", "team", "state.db"), st.StateDBPath)
	assert.Equal(t, filepath.Join(home, "claude", "projects"), st.Transcripts.Root)
	assert.Equal(t, attention.StrategyPendingTool, st.Classifier.StrategyName())
}
