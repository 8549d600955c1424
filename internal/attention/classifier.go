package attention

import (
	"context"
	"log/slog"
	"time"

	"github.com/orcadeck/orca/internal/logging"
	"github.com/orcadeck/orca/internal/transcript"
)

var attnLog = logging.ForComponent(logging.CompAttention)

// DefaultTailBytes bounds the transcript tail read per classification.
const DefaultTailBytes = 256 * 1024

// PaneProbe reports whether a tmux pane is showing a permission prompt.
// Failures must read as false.
type PaneProbe interface {
	WaitingForInput(ctx context.Context, pane string) bool
}

// Source finds and reads transcripts. *transcript.Store implements it.
type Source interface {
	Locate(projectPath, conversationID string) (string, bool)
	Tail(path string, maxBytes int64) []transcript.Entry
}

// Target identifies one session to classify.
type Target struct {
	Coarse         CoarseStatus
	ProjectPath    string
	ConversationID string
	// Pane is the tmux target; empty skips pane refinement
	Pane string
}

// Options configures a Classifier. Zero values take defaults.
type Options struct {
	Strategy         string
	StaleAfter       time.Duration
	InteractiveTools []string
	TailBytes        int64
	Probe            PaneProbe
	Now              func() time.Time
}

// Classifier applies a Strategy and, for running sessions, the pane probe.
// It holds no per-session state and is safe for concurrent use.
type Classifier struct {
	strategy  Strategy
	probe     PaneProbe
	tailBytes int64
	now       func() time.Time
}

// New builds a Classifier. An unknown strategy name logs a warning and
// falls back to interactive-tools.
func New(opts Options) *Classifier {
	strategy, ok := NewStrategy(opts.Strategy, opts.StaleAfter, opts.InteractiveTools)
	if !ok {
		attnLog.Warn("unknown_strategy",
			slog.String("strategy", opts.Strategy),
			slog.String("using", strategy.Name()))
	}
	c := &Classifier{
		strategy:  strategy,
		probe:     opts.Probe,
		tailBytes: opts.TailBytes,
		now:       opts.Now,
	}
	if c.tailBytes <= 0 {
		c.tailBytes = DefaultTailBytes
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// StrategyName returns the active strategy.
func (c *Classifier) StrategyName() string {
	return c.strategy.Name()
}

// TailBytes returns the tail window size.
func (c *Classifier) TailBytes() int64 {
	return c.tailBytes
}

// Classify maps the signals to a Status. pane may be empty. It never fails.
func (c *Classifier) Classify(ctx context.Context, coarse CoarseStatus, tail []transcript.Entry, found bool, pane string) Status {
	status := c.strategy.Evaluate(coarse, tail, found, c.now())
	return c.refine(ctx, status, pane)
}

// Evaluate is Classify without pane refinement.
func (c *Classifier) Evaluate(coarse CoarseStatus, tail []transcript.Entry, found bool) Status {
	return c.strategy.Evaluate(coarse, tail, found, c.now())
}

// Assess locates and reads the target's transcript, then classifies it.
func (c *Classifier) Assess(ctx context.Context, src Source, t Target) Status {
	var (
		tail  []transcript.Entry
		found bool
	)
	if t.ConversationID != "" && src != nil {
		var path string
		if path, found = src.Locate(t.ProjectPath, t.ConversationID); found {
			tail = src.Tail(path, c.tailBytes)
		}
	}

	status := c.Classify(ctx, t.Coarse, tail, found, t.Pane)
	attnLog.Debug("classified",
		slog.String("conversation", t.ConversationID),
		slog.String("coarse", string(t.Coarse)),
		slog.Bool("transcript", found),
		slog.Int("entries", len(tail)),
		slog.String("status", string(status)))
	return status
}

// refine upgrades Running to NeedsInput when the pane shows a prompt.
func (c *Classifier) refine(ctx context.Context, status Status, pane string) Status {
	if status != Running || pane == "" || c.probe == nil {
		return status
	}
	if c.probe.WaitingForInput(ctx, pane) {
		return NeedsInput
	}
	return status
}
