// Package monitor joins agent-deck's session store with transcript
// classification. Every call opens the store read-only and closes it again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/statedb"
	"github.com/orcadeck/orca/internal/summary"
)

// ErrSessionNotFound is returned by Session for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the read side of agent-deck's state.db.
type SessionStore interface {
	LoadInstances() ([]*statedb.InstanceRow, error)
	LoadCandidates() ([]*statedb.InstanceRow, error)
	LoadInstance(id string) (*statedb.InstanceRow, error)
	LoadGroups() ([]*statedb.GroupRow, error)
	Close() error
}

// StoreOpener opens a fresh SessionStore.
type StoreOpener func() (SessionStore, error)

// ReadOnlyOpener opens the state.db at path read-only.
func ReadOnlyOpener(path string) StoreOpener {
	return func() (SessionStore, error) {
		return statedb.OpenReadOnly(path)
	}
}

// SessionView is a session row plus its digest.
type SessionView struct {
	ID             string                 `json:"id" yaml:"id"`
	Title          string                 `json:"title" yaml:"title"`
	GroupPath      string                 `json:"group_path" yaml:"group_path"`
	ProjectPath    string                 `json:"project_path" yaml:"project_path"`
	Tool           string                 `json:"tool" yaml:"tool"`
	Order          int                    `json:"order" yaml:"order"`
	CoarseStatus   attention.CoarseStatus `json:"coarse_status" yaml:"coarse_status"`
	TmuxSession    string                 `json:"tmux_session,omitempty" yaml:"tmux_session,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at" yaml:"created_at"`
	LastAccessed   time.Time              `json:"last_accessed,omitempty" yaml:"last_accessed,omitempty"`
	summary.SessionSummary `yaml:",inline"`
}

// Filter narrows Sessions.
type Filter struct {
	// Group is a glob over group paths ("work/**"); empty matches all
	Group string
	// Attention keeps only these statuses; empty keeps all
	Attention []attention.Status
	// Probe enables pane refinement for running sessions
	Probe bool
}

// Options configures a Service.
type Options struct {
	Open        StoreOpener
	Builder     *summary.Builder
	Classifier  *attention.Classifier
	Source      attention.Source
	MaxParallel int
}

// Service answers session and attention queries.
type Service struct {
	open        StoreOpener
	builder     *summary.Builder
	classifier  *attention.Classifier
	source      attention.Source
	maxParallel int
}

// New builds a Service.
func New(opts Options) *Service {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = attention.DefaultMaxParallel
	}
	return &Service{
		open:        opts.Open,
		builder:     opts.Builder,
		classifier:  opts.Classifier,
		source:      opts.Source,
		maxParallel: opts.MaxParallel,
	}
}

func (s *Service) withStore(fn func(SessionStore) error) error {
	if s.open == nil {
		return fmt.Errorf("monitor: store opener is not configured")
	}
	store, err := s.open()
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

// CompileGroupFilter compiles a group glob where "*" stays within one path
// segment and "**" spans segments. Empty patterns compile to nil.
func CompileGroupFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid group pattern %q: %w", pattern, err)
	}
	return g, nil
}

// Sessions lists sessions with their summaries, in store order.
func (s *Service) Sessions(ctx context.Context, f Filter) ([]SessionView, error) {
	groupGlob, err := CompileGroupFilter(f.Group)
	if err != nil {
		return nil, err
	}

	var rows []*statedb.InstanceRow
	if err := s.withStore(func(st SessionStore) error {
		var err error
		rows, err = st.LoadInstances()
		return err
	}); err != nil {
		return nil, err
	}

	if groupGlob != nil {
		kept := rows[:0]
		for _, r := range rows {
			if groupGlob.Match(r.GroupPath) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	views := make([]SessionView, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, r := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			views[i] = s.view(gctx, r, f.Probe)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(f.Attention) == 0 {
		return views, nil
	}
	want := make(map[attention.Status]bool, len(f.Attention))
	for _, st := range f.Attention {
		want[st] = true
	}
	out := views[:0]
	for _, v := range views {
		if want[v.Attention] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Session returns one session with its summary. probe enables pane
// refinement.
func (s *Service) Session(ctx context.Context, id string, probe bool) (SessionView, error) {
	var row *statedb.InstanceRow
	err := s.withStore(func(st SessionStore) error {
		var err error
		row, err = st.LoadInstance(id)
		return err
	})
	if errors.Is(err, statedb.ErrNotFound) {
		return SessionView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionView{}, err
	}
	return s.view(ctx, row, probe), nil
}

// Counts aggregates attention across waiting and errored sessions.
func (s *Service) Counts(ctx context.Context) (attention.Counts, error) {
	var rows []*statedb.InstanceRow
	if err := s.withStore(func(st SessionStore) error {
		var err error
		rows, err = st.LoadCandidates()
		return err
	}); err != nil {
		return attention.Counts{Groups: map[string]string{}}, err
	}
	return s.classifier.Aggregate(ctx, s.source, Candidates(rows), s.maxParallel)
}

// Attention returns only the sessions that need a human.
func (s *Service) Attention(ctx context.Context) ([]attention.Flagged, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return counts.Sessions, nil
}

// Groups returns agent-deck's groups in display order.
func (s *Service) Groups(ctx context.Context) ([]*statedb.GroupRow, error) {
	var groups []*statedb.GroupRow
	err := s.withStore(func(st SessionStore) error {
		var err error
		groups, err = st.LoadGroups()
		return err
	})
	return groups, err
}

// Candidates converts store rows into aggregator input.
func Candidates(rows []*statedb.InstanceRow) []attention.Candidate {
	out := make([]attention.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, attention.Candidate{
			SessionID:      r.ID,
			Title:          r.Title,
			GroupPath:      r.GroupPath,
			ProjectPath:    r.ProjectPath,
			ConversationID: r.ClaudeSessionID(),
			Coarse:         attention.ParseCoarse(r.Status),
		})
	}
	return out
}

func (s *Service) view(ctx context.Context, r *statedb.InstanceRow, probe bool) SessionView {
	req := summary.Request{
		SessionID:      r.ID,
		ProjectPath:    r.ProjectPath,
		ConversationID: r.ClaudeSessionID(),
		Coarse:         attention.ParseCoarse(r.Status),
	}
	if probe {
		req.Pane = r.TmuxSession
	}
	return SessionView{
		ID:             r.ID,
		Title:          r.Title,
		GroupPath:      r.GroupPath,
		ProjectPath:    r.ProjectPath,
		Tool:           r.Tool,
		Order:          r.Order,
		CoarseStatus:   req.Coarse,
		TmuxSession:    r.TmuxSession,
		ConversationID: req.ConversationID,
		CreatedAt:      r.CreatedAt,
		LastAccessed:   r.LastAccessed,
		SessionSummary: s.builder.Build(ctx, req),
	}
}
