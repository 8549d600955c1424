package transcript

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Entry types written by Claude Code.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
	TypeSummary   = "summary"
)

// Roles inside an embedded message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentKind discriminates ContentItem.
type ContentKind int

const (
	ContentOther ContentKind = iota
	ContentText
	ContentToolUse
	ContentToolResult
)

// ContentItem is one block of a message's content array.
type ContentItem struct {
	Kind ContentKind

	// Text holds the text of a ContentText block
	Text string

	// ID and Name identify a ContentToolUse block
	ID   string
	Name string

	// ToolUseID and IsError describe a ContentToolResult block
	ToolUseID string
	IsError   bool
}

// Entry is one parsed transcript line.
type Entry struct {
	Type string

	// Timestamp is zero when the line carries none or it cannot be read
	Timestamp time.Time

	// Summary is set on TypeSummary entries
	Summary string

	// Role and Content come from the embedded message, or from the entry
	// itself when no message object is present
	Role    string
	Content []ContentItem
}

// IsConversational reports whether the entry is a user or assistant turn.
func (e Entry) IsConversational() bool {
	return e.Type == TypeUser || e.Type == TypeAssistant
}

// IsAssistant reports whether the message was authored by the assistant.
func (e Entry) IsAssistant() bool {
	return e.Role == RoleAssistant
}

// HasTimestamp reports whether a timestamp was parsed.
func (e Entry) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// ToolUses returns the tool_use blocks in order.
func (e Entry) ToolUses() []ContentItem {
	var out []ContentItem
	for _, c := range e.Content {
		if c.Kind == ContentToolUse {
			out = append(out, c)
		}
	}
	return out
}

type rawEntry struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Summary   json.RawMessage `json:"summary"`
	Message   json.RawMessage `json:"message"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
}

// ParseLine decodes one JSONL line. Only lines that are not a JSON object
// fail; odd field shapes inside an object are ignored.
func ParseLine(line []byte) (Entry, bool) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}

	e := Entry{
		Type:      raw.Type,
		Timestamp: parseTimestamp(raw.Timestamp),
		Role:      raw.Role,
	}
	_ = json.Unmarshal(raw.Summary, &e.Summary)

	content := raw.Content
	if isObject(raw.Message) {
		var msg rawMessage
		if err := json.Unmarshal(raw.Message, &msg); err == nil {
			e.Role = msg.Role
			content = msg.Content
		}
	}
	e.Content = parseContent(content)
	return e, true
}

func isObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// parseContent accepts either a plain string (one text block) or an array
// of typed blocks. Blocks that fail to decode are skipped.
func parseContent(b json.RawMessage) []ContentItem {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		return []ContentItem{{Kind: ContentText, Text: s}}
	case '[':
		var blocks []json.RawMessage
		if err := json.Unmarshal(b, &blocks); err != nil {
			return nil
		}
		items := make([]ContentItem, 0, len(blocks))
		for _, rb := range blocks {
			var blk rawBlock
			if err := json.Unmarshal(rb, &blk); err != nil {
				continue
			}
			items = append(items, blockToItem(blk))
		}
		return items
	}
	return nil
}

func blockToItem(b rawBlock) ContentItem {
	switch b.Type {
	case "text":
		return ContentItem{Kind: ContentText, Text: b.Text}
	case "tool_use":
		return ContentItem{Kind: ContentToolUse, ID: b.ID, Name: b.Name}
	case "tool_result":
		return ContentItem{Kind: ContentToolResult, ToolUseID: b.ToolUseID, IsError: b.IsError}
	}
	return ContentItem{Kind: ContentOther}
}

// parseTimestamp accepts float seconds since the epoch or an RFC 3339
// string. Anything else yields the zero time.
func parseTimestamp(b json.RawMessage) time.Time {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return time.Time{}
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatSeconds(f)
		}
		return time.Time{}
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return time.Time{}
	}
	return floatSeconds(f)
}

func floatSeconds(f float64) time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
