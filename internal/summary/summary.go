// Package summary builds the per-session digest shown next to a session:
// Claude's own summary line, the opening prompt, the latest tool and reply,
// and the attention status.
package summary

import (
	"context"
	"log/slog"
	"strings"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/logging"
	"github.com/orcadeck/orca/internal/transcript"
)

var summaryLog = logging.ForComponent(logging.CompAttention)

// MaxTextRunes bounds initial_prompt and last_text.
const MaxTextRunes = 200

// DefaultHeadBytes bounds the head read used for the opening prompt.
const DefaultHeadBytes = 32 * 1024

// SessionSummary is the digest for one session. Nil fields are unknown.
type SessionSummary struct {
	Summary       *string          `json:"summary" yaml:"summary"`
	InitialPrompt *string          `json:"initial_prompt" yaml:"initial_prompt"`
	Attention     attention.Status `json:"attention" yaml:"attention"`
	LastTool      *string          `json:"last_tool" yaml:"last_tool"`
	LastText      *string          `json:"last_text" yaml:"last_text"`
}

// Request identifies the session to summarize.
type Request struct {
	// SessionID keys the prompt-store fallback; may be empty
	SessionID      string
	ProjectPath    string
	ConversationID string
	Coarse         attention.CoarseStatus
	// Pane enables pane refinement of a Running status
	Pane string
}

// Reader is what the builder needs from the transcript store.
type Reader interface {
	attention.Source
	Head(path string, maxBytes int64) []transcript.Entry
}

// PromptStore returns the prompt recorded when a session was created.
type PromptStore interface {
	Prompt(ctx context.Context, sessionID string) (string, bool, error)
}

// Builder assembles SessionSummary values. Safe for concurrent use.
type Builder struct {
	reader     Reader
	classifier *attention.Classifier
	prompts    PromptStore
	headBytes  int64
}

// NewBuilder returns a builder. prompts may be nil; headBytes <= 0 uses
// DefaultHeadBytes.
func NewBuilder(reader Reader, classifier *attention.Classifier, prompts PromptStore, headBytes int64) *Builder {
	if headBytes <= 0 {
		headBytes = DefaultHeadBytes
	}
	return &Builder{reader: reader, classifier: classifier, prompts: prompts, headBytes: headBytes}
}

// Build reads the transcript once and extracts everything. It never fails;
// missing pieces are nil.
func (b *Builder) Build(ctx context.Context, req Request) SessionSummary {
	var (
		path  string
		found bool
		tail  []transcript.Entry
		head  []transcript.Entry
	)
	if req.ConversationID != "" {
		path, found = b.reader.Locate(req.ProjectPath, req.ConversationID)
	}
	if found {
		tail = b.reader.Tail(path, b.classifier.TailBytes())
		head = b.reader.Head(path, b.headBytes)
	}

	out := SessionSummary{
		Attention: b.classifier.Classify(ctx, req.Coarse, tail, found, req.Pane),
	}
	if found {
		out.Summary = ExtractSummary(tail)
		out.LastTool = ExtractLastTool(tail)
		out.LastText = ExtractLastText(tail)
		out.InitialPrompt = ExtractInitialPrompt(head)
	}
	if out.InitialPrompt == nil {
		out.InitialPrompt = b.storedPrompt(ctx, req.SessionID)
	}
	return out
}

func (b *Builder) storedPrompt(ctx context.Context, sessionID string) *string {
	if b.prompts == nil || sessionID == "" {
		return nil
	}
	p, ok, err := b.prompts.Prompt(ctx, sessionID)
	if err != nil {
		summaryLog.Debug("stored_prompt_failed", slog.String("session", sessionID), slog.String("error", err.Error()))
		return nil
	}
	p = strings.TrimSpace(p)
	if !ok || p == "" {
		return nil
	}
	return ptr(truncateRunes(p, MaxTextRunes))
}

// ExtractSummary returns the latest summary entry's text.
func ExtractSummary(tail []transcript.Entry) *string {
	for i := len(tail) - 1; i >= 0; i-- {
		if tail[i].Type == transcript.TypeSummary && tail[i].Summary != "" {
			return ptr(tail[i].Summary)
		}
	}
	return nil
}

// ExtractInitialPrompt returns the first non-blank user text in the head
// window, truncated.
func ExtractInitialPrompt(head []transcript.Entry) *string {
	for _, e := range head {
		if e.Role != transcript.RoleUser {
			continue
		}
		for _, c := range e.Content {
			if c.Kind != transcript.ContentText {
				continue
			}
			if t := strings.TrimSpace(c.Text); t != "" {
				return ptr(truncateRunes(t, MaxTextRunes))
			}
		}
	}
	return nil
}

// ExtractLastTool returns the first tool name of the latest assistant entry
// that used a tool.
func ExtractLastTool(tail []transcript.Entry) *string {
	for i := len(tail) - 1; i >= 0; i-- {
		if !tail[i].IsAssistant() {
			continue
		}
		if uses := tail[i].ToolUses(); len(uses) > 0 {
			return ptr(uses[0].Name)
		}
	}
	return nil
}

// ExtractLastText returns the first non-blank text of the latest assistant
// entry that has one, truncated.
func ExtractLastText(tail []transcript.Entry) *string {
	for i := len(tail) - 1; i >= 0; i-- {
		if !tail[i].IsAssistant() {
			continue
		}
		for _, c := range tail[i].Content {
			if c.Kind != transcript.ContentText {
				continue
			}
			if t := strings.TrimSpace(c.Text); t != "" {
				return ptr(truncateRunes(t, MaxTextRunes))
			}
		}
	}
	return nil
}

// truncateRunes keeps the first n runes, never splitting a character.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func ptr(s string) *string { return &s }
