package attention

import (
	"time"

	"github.com/orcadeck/orca/internal/transcript"
)

// Strategy names.
const (
	StrategyInteractiveTools = "interactive-tools"
	StrategyPendingTool      = "pending-tool"
)

// DefaultStaleAfter is the staleness threshold when none is configured.
const DefaultStaleAfter = time.Hour

// DefaultInteractiveTools block on the user whatever the approval settings.
var DefaultInteractiveTools = []string{"AskUserQuestion", "EnterPlanMode", "ExitPlanMode"}

// Strategy evaluates the transcript rules (everything but pane refinement).
// found is false when no transcript exists for the session.
type Strategy interface {
	Name() string
	Evaluate(coarse CoarseStatus, tail []transcript.Entry, found bool, now time.Time) Status
}

// StrategyNames lists the built-in strategies.
func StrategyNames() []string {
	return []string{StrategyInteractiveTools, StrategyPendingTool}
}

// NewStrategy builds a strategy by name. ok is false for unknown names, in
// which case the interactive-tools strategy is returned.
func NewStrategy(name string, staleAfter time.Duration, tools []string) (Strategy, bool) {
	base := newInteractiveTools(staleAfter, tools)
	switch name {
	case "", StrategyInteractiveTools:
		return base, true
	case StrategyPendingTool:
		return &pendingTool{base: base}, true
	}
	return base, false
}

type interactiveTools struct {
	staleAfter time.Duration
	tools      map[string]struct{}
}

func newInteractiveTools(staleAfter time.Duration, tools []string) *interactiveTools {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if len(tools) == 0 {
		tools = DefaultInteractiveTools
	}
	set := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		set[t] = struct{}{}
	}
	return &interactiveTools{staleAfter: staleAfter, tools: set}
}

func (s *interactiveTools) Name() string { return StrategyInteractiveTools }

func (s *interactiveTools) Evaluate(coarse CoarseStatus, tail []transcript.Entry, found bool, now time.Time) Status {
	return s.evaluate(coarse, tail, found, now, nil)
}

// evaluate runs the rule chain. extra, when set, is consulted right after
// the interactive-tool rule and may claim NeedsInput.
func (s *interactiveTools) evaluate(
	coarse CoarseStatus,
	tail []transcript.Entry,
	found bool,
	now time.Time,
	extra func(conv []transcript.Entry) bool,
) Status {
	if !found {
		return coarseFallback(coarse)
	}

	conv := conversational(tail)

	if coarse == CoarseWaiting {
		for _, e := range conv {
			if e.IsAssistant() {
				return NeedsInput
			}
		}
		return Idle
	}

	if len(conv) == 0 {
		return coarseFallback(coarse)
	}

	last := conv[len(conv)-1]
	if last.IsAssistant() {
		for _, tu := range last.ToolUses() {
			if _, ok := s.tools[tu.Name]; ok {
				return NeedsInput
			}
		}
	}

	if extra != nil && extra(conv) {
		return NeedsInput
	}

	if n := len(tail); n > 0 && tail[n-1].HasTimestamp() {
		if now.Sub(tail[n-1].Timestamp) > s.staleAfter {
			return Stale
		}
	}

	switch coarse {
	case CoarseRunning:
		return Running
	case CoarseError:
		return Error
	}
	return Idle
}

// pendingTool additionally treats an assistant tool call with no result
// later in the window as waiting on the user. A tool that is still
// executing looks the same, so it over-reports NeedsInput.
type pendingTool struct {
	base *interactiveTools
}

func (s *pendingTool) Name() string { return StrategyPendingTool }

func (s *pendingTool) Evaluate(coarse CoarseStatus, tail []transcript.Entry, found bool, now time.Time) Status {
	return s.base.evaluate(coarse, tail, found, now, hasPendingToolUse)
}

func hasPendingToolUse(conv []transcript.Entry) bool {
	pending := make(map[string]struct{})
	for _, e := range conv {
		for _, c := range e.Content {
			switch c.Kind {
			case transcript.ContentToolUse:
				if e.IsAssistant() && c.ID != "" {
					pending[c.ID] = struct{}{}
				}
			case transcript.ContentToolResult:
				delete(pending, c.ToolUseID)
			}
		}
	}
	return len(pending) > 0
}

func conversational(tail []transcript.Entry) []transcript.Entry {
	out := make([]transcript.Entry, 0, len(tail))
	for _, e := range tail {
		if e.IsConversational() {
			out = append(out, e)
		}
	}
	return out
}
