// Package ui is orca's terminal dashboard: sessions grouped by group path
// with their attention status, refreshed periodically.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"golang.org/x/time/rate"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/clipboard"
	"github.com/orcadeck/orca/internal/monitor"
)

const (
	defaultRefresh   = 2 * time.Second
	titleColumnWidth = 28
	detailLines      = 4
)

// SessionLister loads sessions. monitor.Service implements it.
type SessionLister interface {
	Sessions(ctx context.Context, f monitor.Filter) ([]monitor.SessionView, error)
}

// Options configures the dashboard.
type Options struct {
	Profile string
	Source  SessionLister
	// Probe refines running sessions from their tmux pane; may be nil
	Probe attention.PaneProbe
	// Group is an optional group glob
	Group           string
	Refresh         time.Duration
	ProbesPerSecond float64
	// Theme is "dark", "light" or "system"
	Theme string
	// Copy puts text on the clipboard; defaults to clipboard.Copy
	Copy func(text string) (method string, err error)
}

type row struct {
	group string
	count int
	view  *monitor.SessionView // nil for group headers
}

type (
	sessionsLoadedMsg struct {
		views []monitor.SessionView
		err   error
		at    time.Time
	}
	refreshTickMsg time.Time
	paneProbedMsg  struct {
		id      string
		waiting bool
	}
	themeChangedMsg struct{ dark bool }
	copiedMsg       struct {
		text   string
		method string
		err    error
	}
)

// Dashboard is the bubbletea model.
type Dashboard struct {
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	theme   *ThemeWatcher

	filter    textinput.Model
	filtering bool

	sessions    []monitor.SessionView
	paneWaiting map[string]bool
	rows        []row
	cursor      int
	offset      int

	width, height int
	err           error
	notice        string
	lastRefresh   time.Time
}

// New builds a dashboard. Call Close (or quit the program) to release it.
func New(ctx context.Context, opts Options) *Dashboard {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	if opts.ProbesPerSecond <= 0 {
		opts.ProbesPerSecond = 4
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.Copy
	}
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "filter sessions"
	ti.CharLimit = 100

	d := &Dashboard{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		limiter:     rate.NewLimiter(rate.Limit(opts.ProbesPerSecond), 1),
		filter:      ti,
		paneWaiting: make(map[string]bool),
		width:       100,
		height:      30,
	}
	if opts.Theme == "system" {
		d.theme = NewThemeWatcher(ctx)
	}
	return d
}

// Run starts a full-screen program and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	d := New(ctx, opts)
	defer d.Close()
	_, err := tea.NewProgram(d, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close cancels in-flight loads and probes.
func (d *Dashboard) Close() {
	d.cancel()
	if d.theme != nil {
		d.theme.Close()
	}
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.load(), d.tick(), d.listenTheme())
}

func (d *Dashboard) load() tea.Cmd {
	src, ctx, group := d.opts.Source, d.ctx, d.opts.Group
	return func() tea.Msg {
		if src == nil {
			return sessionsLoadedMsg{err: fmt.Errorf("no session source"), at: time.Now()}
		}
		views, err := src.Sessions(ctx, monitor.Filter{Group: group})
		return sessionsLoadedMsg{views: views, err: err, at: time.Now()}
	}
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.opts.Refresh, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func (d *Dashboard) listenTheme() tea.Cmd {
	if d.theme == nil {
		return nil
	}
	ch := d.theme.ChangeChannel()
	return func() tea.Msg {
		isDark, ok := <-ch
		if !ok {
			return nil
		}
		return themeChangedMsg{dark: isDark}
	}
}

// probeRunning schedules pane probes for running sessions, paced by the
// limiter so a large deck does not hammer tmux.
func (d *Dashboard) probeRunning() tea.Cmd {
	if d.opts.Probe == nil {
		return nil
	}
	var cmds []tea.Cmd
	for _, v := range d.sessions {
		if v.Attention != attention.Running || v.TmuxSession == "" {
			continue
		}
		id, pane := v.ID, v.TmuxSession
		probe, limiter, ctx := d.opts.Probe, d.limiter, d.ctx
		cmds = append(cmds, func() tea.Msg {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			return paneProbedMsg{id: id, waiting: probe.WaitingForInput(ctx, pane)}
		})
	}
	return tea.Batch(cmds...)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
		d.clampOffset()
		return d, nil

	case tea.KeyMsg:
		return d.handleKey(msg)

	case sessionsLoadedMsg:
		if msg.err != nil {
			d.err = msg.err
			uiLog.Warn("sessions_load_failed", slog.String("error", msg.err.Error()))
			return d, nil
		}
		d.err = nil
		d.lastRefresh = msg.at
		d.sessions = msg.views
		running := make(map[string]bool)
		for _, v := range d.sessions {
			if v.Attention == attention.Running {
				running[v.ID] = true
			}
		}
		for id := range d.paneWaiting {
			if !running[id] {
				delete(d.paneWaiting, id)
			}
		}
		d.rebuild()
		return d, d.probeRunning()

	case refreshTickMsg:
		return d, tea.Batch(d.load(), d.tick())

	case paneProbedMsg:
		if msg.waiting {
			d.paneWaiting[msg.id] = true
		} else {
			delete(d.paneWaiting, msg.id)
		}
		return d, nil

	case copiedMsg:
		if msg.err != nil {
			d.notice = "copy failed: " + msg.err.Error()
			uiLog.Warn("copy_failed", slog.String("error", msg.err.Error()))
		} else {
			d.notice = "copied " + msg.text
		}
		return d, nil

	case themeChangedMsg:
		if msg.dark {
			InitTheme(string(ThemeDark))
		} else {
			InitTheme(string(ThemeLight))
		}
		return d, d.listenTheme()
	}

	if d.filtering {
		var cmd tea.Cmd
		d.filter, cmd = d.filter.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		d.Close()
		return d, tea.Quit
	}

	if d.filtering {
		switch msg.String() {
		case "esc":
			d.filtering = false
			d.filter.Blur()
			d.filter.SetValue("")
			d.rebuild()
			return d, nil
		case "enter":
			d.filtering = false
			d.filter.Blur()
			return d, nil
		case "up", "down":
			d.move(map[string]int{"up": -1, "down": 1}[msg.String()])
			return d, nil
		}
		var cmd tea.Cmd
		d.filter, cmd = d.filter.Update(msg)
		d.rebuild()
		return d, cmd
	}

	switch msg.String() {
	case "q":
		d.Close()
		return d, tea.Quit
	case "/":
		d.filtering = true
		return d, d.filter.Focus()
	case "esc":
		if d.filter.Value() != "" {
			d.filter.SetValue("")
			d.rebuild()
		}
	case "up", "k":
		d.move(-1)
	case "down", "j":
		d.move(1)
	case "home", "g":
		d.cursor = 0
		d.move(0)
	case "end", "G":
		d.cursor = len(d.rows) - 1
		d.move(0)
	case "r":
		return d, d.load()
	case "y":
		return d, d.copySelected()
	}
	return d, nil
}

// attachCommand is what "y" copies: a tmux attach line when the session has
// a tmux session, else its id.
func attachCommand(v *monitor.SessionView) string {
	if v.TmuxSession != "" {
		return "tmux attach -t " + v.TmuxSession
	}
	return v.ID
}

func (d *Dashboard) copySelected() tea.Cmd {
	v := d.selected()
	if v == nil {
		return nil
	}
	text := attachCommand(v)
	copyFn := d.opts.Copy
	return func() tea.Msg {
		method, err := copyFn(text)
		return copiedMsg{text: text, method: method, err: err}
	}
}

// effectiveStatus applies pane refinement to a session's status.
func (d *Dashboard) effectiveStatus(v *monitor.SessionView) attention.Status {
	if v.Attention == attention.Running && d.paneWaiting[v.ID] {
		return attention.NeedsInput
	}
	return v.Attention
}

type viewSource []monitor.SessionView

func (s viewSource) String(i int) string {
	v := s[i]
	return v.Title + " " + v.GroupPath + " " + v.ProjectPath
}

func (s viewSource) Len() int { return len(s) }

// visibleSessions applies the fuzzy filter, keeping store order.
func (d *Dashboard) visibleSessions() []int {
	q := strings.TrimSpace(d.filter.Value())
	if q == "" {
		idx := make([]int, len(d.sessions))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	matches := fuzzy.FindFrom(q, viewSource(d.sessions))
	idx := make([]int, 0, len(matches))
	for _, m := range matches {
		idx = append(idx, m.Index)
	}
	sort.Ints(idx)
	return idx
}

func (d *Dashboard) rebuild() {
	selected := d.selectedID()

	d.rows = d.rows[:0]
	header := -1
	for _, i := range d.visibleSessions() {
		v := &d.sessions[i]
		if header < 0 || d.rows[header].group != v.GroupPath {
			d.rows = append(d.rows, row{group: v.GroupPath})
			header = len(d.rows) - 1
		}
		d.rows[header].count++
		d.rows = append(d.rows, row{group: v.GroupPath, view: v})
	}

	d.cursor = 0
	for i, r := range d.rows {
		if r.view != nil && r.view.ID == selected {
			d.cursor = i
			break
		}
	}
	d.move(0)
}

// move shifts the cursor by delta session rows, skipping group headers.
func (d *Dashboard) move(delta int) {
	if len(d.rows) == 0 {
		d.cursor, d.offset = 0, 0
		return
	}
	step := 1
	if delta < 0 {
		step = -1
	}
	pos := d.cursor
	for n := delta; n != 0; n -= step {
		next := pos + step
		for next >= 0 && next < len(d.rows) && d.rows[next].view == nil {
			next += step
		}
		if next < 0 || next >= len(d.rows) {
			break
		}
		pos = next
	}
	if pos < 0 {
		pos = 0
	}
	if pos >= len(d.rows) {
		pos = len(d.rows) - 1
	}
	for pos < len(d.rows)-1 && d.rows[pos].view == nil {
		pos++
	}
	for pos > 0 && d.rows[pos].view == nil {
		pos--
	}
	d.cursor = pos
	d.clampOffset()
}

func (d *Dashboard) listHeight() int {
	h := d.height - 4 - detailLines
	if h < 3 {
		h = 3
	}
	return h
}

func (d *Dashboard) clampOffset() {
	h := d.listHeight()
	if d.cursor < d.offset {
		d.offset = d.cursor
		if d.offset > 0 && d.rows[d.offset-1].view == nil {
			d.offset--
		}
	}
	if d.cursor >= d.offset+h {
		d.offset = d.cursor - h + 1
	}
	if d.offset < 0 {
		d.offset = 0
	}
}

func (d *Dashboard) selected() *monitor.SessionView {
	if d.cursor < 0 || d.cursor >= len(d.rows) {
		return nil
	}
	return d.rows[d.cursor].view
}

func (d *Dashboard) selectedID() string {
	if v := d.selected(); v != nil {
		return v.ID
	}
	return ""
}

func (d *Dashboard) View() string {
	var b strings.Builder
	b.WriteString(d.renderHeader())
	b.WriteString("\n")

	if d.filtering || d.filter.Value() != "" {
		b.WriteString(FilterPrompt.Render("/ ") + d.filter.View())
	}
	b.WriteString("\n")

	if len(d.rows) == 0 {
		switch {
		case d.err != nil:
		case d.lastRefresh.IsZero():
			b.WriteString(DimStyle.Render("  loading sessions..."))
		case d.filter.Value() != "":
			b.WriteString(DimStyle.Render("  no sessions match"))
		default:
			b.WriteString(DimStyle.Render("  no sessions"))
		}
		b.WriteString("\n")
	}

	end := d.offset + d.listHeight()
	if end > len(d.rows) {
		end = len(d.rows)
	}
	for i := d.offset; i < end; i++ {
		b.WriteString(d.renderRow(d.rows[i], i == d.cursor))
		b.WriteString("\n")
	}

	b.WriteString(d.renderDetail())
	if d.err != nil {
		b.WriteString(ErrorStyle.Render("error: "+d.err.Error()) + "\n")
	} else if d.notice != "" {
		b.WriteString(DimStyle.Render(d.notice) + "\n")
	}
	b.WriteString(d.renderHelp())
	return b.String()
}

func (d *Dashboard) renderHeader() string {
	var needs, errs int
	for i := range d.sessions {
		switch d.effectiveStatus(&d.sessions[i]) {
		case attention.NeedsInput:
			needs++
		case attention.Error:
			errs++
		}
	}
	profile := d.opts.Profile
	if profile == "" {
		profile = "default"
	}
	parts := []string{
		TitleStyle.Render("orca"),
		DimStyle.Render(profile),
		fmt.Sprintf("%d sessions", len(d.sessions)),
	}
	if needs > 0 {
		parts = append(parts, StatusBadge(attention.NeedsInput)+fmt.Sprintf(" %d", needs))
	}
	if errs > 0 {
		parts = append(parts, StatusBadge(attention.Error)+fmt.Sprintf(" %d", errs))
	}
	if !d.lastRefresh.IsZero() {
		parts = append(parts, DimStyle.Render("updated "+d.lastRefresh.Format("15:04:05")))
	}
	return strings.Join(parts, DimStyle.Render(" · "))
}

func (d *Dashboard) renderRow(r row, selected bool) string {
	if r.view == nil {
		name := r.group
		if name == "" {
			name = "(ungrouped)"
		}
		return GroupNameStyle.Render(name) + GroupCountStyle.Render(fmt.Sprintf(" (%d)", r.count))
	}

	v := r.view
	badge := StatusBadge(d.effectiveStatus(v))
	title := v.Title
	if title == "" {
		title = v.ID
	}
	title = runewidth.FillRight(runewidth.Truncate(title, titleColumnWidth, "…"), titleColumnWidth)
	if selected {
		title = SelectedRowStyle.Render(title)
	} else {
		title = SessionTitle.Render(title)
	}

	line := "  " + title + " " + badge
	remaining := d.width - lipgloss.Width(line) - 2
	if detail := rowDetail(v); detail != "" && remaining > 4 {
		line += "  " + DimStyle.Render(runewidth.Truncate(detail, remaining, "…"))
	}
	return line
}

// rowDetail is a one-line hint: the last tool or the last message.
func rowDetail(v *monitor.SessionView) string {
	if v.LastTool != nil {
		return "⚙ " + *v.LastTool
	}
	if v.LastText != nil {
		return oneLine(*v.LastText)
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (d *Dashboard) renderDetail() string {
	v := d.selected()
	lines := make([]string, 0, detailLines)
	if v != nil {
		add := func(label string, val *string) {
			if val != nil && *val != "" {
				text := runewidth.Truncate(oneLine(*val), max(d.width-12, 10), "…")
				lines = append(lines, HelpKeyStyle.Render(fmt.Sprintf("%-9s", label))+" "+text)
			}
		}
		lines = append(lines, HelpKeyStyle.Render(fmt.Sprintf("%-9s", "project"))+" "+DimStyle.Render(v.ProjectPath))
		add("summary", v.Summary)
		add("prompt", v.InitialPrompt)
		add("last", v.LastText)
	}
	for len(lines) < detailLines {
		lines = append(lines, "")
	}
	return strings.Join(lines[:detailLines], "\n") + "\n"
}

func (d *Dashboard) renderHelp() string {
	keys := [][2]string{{"↑/↓", "move"}, {"/", "filter"}, {"y", "copy attach"}, {"r", "refresh"}, {"q", "quit"}}
	if d.filtering {
		keys = [][2]string{{"enter", "apply"}, {"esc", "clear"}}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, HelpKeyStyle.Render(k[0])+" "+HelpDescStyle.Render(k[1]))
	}
	return strings.Join(parts, "  ")
}
