package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/monitor"
	"github.com/orcadeck/orca/internal/summary"
)

type fakeLister struct {
	mu     sync.Mutex
	views  []monitor.SessionView
	err    error
	filter monitor.Filter
}

func (f *fakeLister) Sessions(_ context.Context, filter monitor.Filter) ([]monitor.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return f.views, f.err
}

type fakeProbe struct{ waiting map[string]bool }

func (p fakeProbe) WaitingForInput(_ context.Context, pane string) bool { return p.waiting[pane] }

func view(id, title, group string, st attention.Status) monitor.SessionView {
	return monitor.SessionView{
		ID:             id,
		Title:          title,
		GroupPath:      group,
		ProjectPath:    "/src/" + id,
		SessionSummary: summary.SessionSummary{Attention: st},
	}
}

func fixtureViews() []monitor.SessionView {
	run := view("s2", "web frontend", "work", attention.Running)
	run.TmuxSession = "agentdeck_web"
	text := "Which database should I use?"
	wait := view("s1", "api server", "work", attention.NeedsInput)
	wait.LastText = &text
	return []monitor.SessionView{
		view("s0", "infra", "", attention.Idle),
		wait,
		run,
		view("s3", "deploy", "ops", attention.Error),
	}
}

func newTestDashboard(t *testing.T, probe attention.PaneProbe) (*Dashboard, *fakeLister) {
	t.Helper()
	lister := &fakeLister{views: fixtureViews()}
	d := New(context.Background(), Options{Profile: "work", Source: lister, Probe: probe, Group: "work/**", ProbesPerSecond: 1000})
	t.Cleanup(d.Close)
	return d, lister
}

// runCmd executes a command and feeds every resulting message back.
func runCmd(d *Dashboard, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	switch msg := msg.(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			runCmd(d, c)
		}
	default:
		_, next := d.Update(msg)
		runCmd(d, next)
	}
}

func loaded(t *testing.T, d *Dashboard) {
	t.Helper()
	runCmd(d, d.load())
	require.NoError(t, d.err)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDashboardGroupsRows(t *testing.T) {
	d, lister := newTestDashboard(t, nil)
	loaded(t, d)

	assert.Equal(t, "work/**", lister.filter.Group)
	assert.False(t, lister.filter.Probe)

	require.Len(t, d.rows, 7)
	assert.Nil(t, d.rows[0].view)
	assert.Equal(t, "", d.rows[0].group)
	assert.Equal(t, 1, d.rows[0].count)
	assert.Nil(t, d.rows[2].view)
	assert.Equal(t, "work", d.rows[2].group)
	assert.Equal(t, 2, d.rows[2].count)
	assert.Equal(t, 1, d.cursor, "cursor lands on first session, not a header")
}

func TestDashboardCursorSkipsHeaders(t *testing.T) {
	d, _ := newTestDashboard(t, nil)
	loaded(t, d)

	d.Update(key("j"))
	assert.Equal(t, "s1", d.selectedID())
	d.Update(key("down"))
	assert.Equal(t, "s2", d.selectedID())
	d.Update(key("down"))
	assert.Equal(t, "s3", d.selectedID())
	d.Update(key("down"))
	assert.Equal(t, "s3", d.selectedID(), "stays on last row")
	d.Update(key("k"))
	d.Update(key("k"))
	d.Update(key("k"))
	d.Update(key("k"))
	assert.Equal(t, "s0", d.selectedID())
	d.Update(key("G"))
	assert.Equal(t, "s3", d.selectedID())
}

func TestDashboardFuzzyFilter(t *testing.T) {
	d, _ := newTestDashboard(t, nil)
	loaded(t, d)

	d.Update(key("/"))
	require.True(t, d.filtering)
	for _, r := range "api" {
		d.Update(key(string(r)))
	}
	assert.Equal(t, "api", d.filter.Value())
	require.Len(t, d.rows, 2)
	assert.Equal(t, "s1", d.rows[1].view.ID)

	d.Update(key("enter"))
	assert.False(t, d.filtering)
	assert.Equal(t, "api", d.filter.Value())

	d.Update(key("esc"))
	assert.Equal(t, "", d.filter.Value())
	assert.Len(t, d.rows, 7)
}

func TestDashboardPaneRefinement(t *testing.T) {
	d, _ := newTestDashboard(t, fakeProbe{waiting: map[string]bool{"agentdeck_web": true}})
	loaded(t, d)

	assert.True(t, d.paneWaiting["s2"])
	assert.Equal(t, attention.NeedsInput, d.effectiveStatus(&d.sessions[2]))
	assert.Equal(t, attention.Error, d.effectiveStatus(&d.sessions[3]))

	// A session that stops running loses its refinement on the next load.
	d.Update(sessionsLoadedMsg{views: []monitor.SessionView{view("s2", "web frontend", "work", attention.Idle)}, at: time.Now()})
	assert.False(t, d.paneWaiting["s2"])
}

func TestDashboardLoadError(t *testing.T) {
	d, lister := newTestDashboard(t, nil)
	loaded(t, d)
	lister.err = errors.New("state.db locked")

	runCmd(d, d.load())
	require.Error(t, d.err)
	assert.Len(t, d.sessions, 4, "keeps last good data")
	assert.Contains(t, d.View(), "state.db locked")
}

func TestDashboardView(t *testing.T) {
	d, _ := newTestDashboard(t, nil)
	d.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	assert.Contains(t, d.View(), "loading sessions")

	loaded(t, d)
	out := d.View()
	assert.Contains(t, out, "orca")
	assert.Contains(t, out, "(ungrouped)")
	assert.Contains(t, out, "api server")
	assert.Contains(t, out, "needs input")
	assert.Contains(t, out, "Which database should I use?")
	assert.Contains(t, out, "/src/s0")
}

func TestDashboardQuit(t *testing.T) {
	d, _ := newTestDashboard(t, nil)
	_, cmd := d.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Error(t, d.ctx.Err())
}

func TestStatusBadge(t *testing.T) {
	InitTheme("light")
	defer InitTheme("dark")
	assert.Equal(t, ThemeLight, CurrentTheme())
	assert.True(t, strings.Contains(StatusBadge(attention.NeedsInput), "needs input"))
	assert.Contains(t, StatusBadge(attention.Status("weird")), "weird")

	InitTheme("anything")
	assert.Equal(t, ThemeDark, CurrentTheme())
}

func TestDetectColorProfile(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	assert.Equal(t, termenv.Ascii, detectColorProfile(env(map[string]string{"ORCA_COLOR": "none"})))
	assert.Equal(t, termenv.ANSI, detectColorProfile(env(map[string]string{"ORCA_COLOR": "16"})))
	assert.Equal(t, termenv.Ascii, detectColorProfile(env(map[string]string{"NO_COLOR": "1"})))
	assert.Equal(t, termenv.TrueColor, detectColorProfile(env(map[string]string{"COLORTERM": "truecolor"})))
	assert.Equal(t, termenv.TrueColor, detectColorProfile(env(map[string]string{"TERM": "tmux-256color"})))
	assert.Equal(t, termenv.ANSI256, detectColorProfile(env(map[string]string{"TERM": "vt100"})))
}

func rowIndex(d *Dashboard, id string) int {
	for i, r := range d.rows {
		if r.view != nil && r.view.ID == id {
			return i
		}
	}
	return -1
}

func TestDashboardCopyAttachCommand(t *testing.T) {
	var copied []string
	lister := &fakeLister{views: fixtureViews()}
	d := New(context.Background(), Options{
		Source: lister,
		Copy: func(text string) (string, error) {
			copied = append(copied, text)
			if strings.HasPrefix(text, "s3") {
				return "", errors.New("no clipboard")
			}
			return "native", nil
		},
	})
	t.Cleanup(d.Close)
	loaded(t, d)

	d.cursor = rowIndex(d, "s2")
	require.GreaterOrEqual(t, d.cursor, 0)
	_, cmd := d.Update(key("y"))
	runCmd(d, cmd)
	assert.Equal(t, []string{"tmux attach -t agentdeck_web"}, copied)
	assert.Contains(t, d.View(), "copied tmux attach -t agentdeck_web")

	d.cursor = rowIndex(d, "s3")
	_, cmd = d.Update(key("y"))
	runCmd(d, cmd)
	assert.Equal(t, "s3", copied[1])
	assert.Contains(t, d.notice, "copy failed: no clipboard")
}
