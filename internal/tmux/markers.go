package tmux

import (
	"log/slog"
	"regexp"
	"strings"
)

// DefaultPromptMarker is the text Claude Code shows on a permission prompt.
const DefaultPromptMarker = "Do you want to proceed?"

// Markers matches prompt text. Patterns prefixed with "re:" are regular
// expressions; everything else is a plain substring.
type Markers struct {
	strings []string
	regexps []*regexp.Regexp
}

// DefaultMarkers matches DefaultPromptMarker only.
func DefaultMarkers() *Markers {
	return &Markers{strings: []string{DefaultPromptMarker}}
}

// CompileMarkers compiles raw patterns. Invalid regexes are logged and
// skipped. An empty list yields DefaultMarkers.
func CompileMarkers(raw []string) *Markers {
	if len(raw) == 0 {
		return DefaultMarkers()
	}
	m := &Markers{}
	for _, p := range raw {
		if strings.HasPrefix(p, "re:") {
			re, err := regexp.Compile(p[3:])
			if err != nil {
				paneLog.Warn("invalid_marker_regex",
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			m.regexps = append(m.regexps, re)
			continue
		}
		if p != "" {
			m.strings = append(m.strings, p)
		}
	}
	return m
}

// Match reports whether any marker occurs in text.
func (m *Markers) Match(text string) bool {
	for _, s := range m.strings {
		if strings.Contains(text, s) {
			return true
		}
	}
	for _, re := range m.regexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Len is the number of usable markers.
func (m *Markers) Len() int {
	return len(m.strings) + len(m.regexps)
}
