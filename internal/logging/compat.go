package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// BridgeWriter adapts slog to io.Writer so stdlib *log.Logger users (the
// http.Server error log, library warnings) land in the structured log. A
// leading "[category] " prefix becomes the component attribute.
type BridgeWriter struct {
	component string
	level     slog.Level
}

// NewBridgeWriter returns a writer logging at warn level under
// defaultComponent unless a prefix names another one.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent, level: slog.LevelWarn}
}

func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}
	msg = stripLogTimestamp(msg)

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = canonicalComponent(strings.ToLower(msg[1:idx]))
			msg = msg[idx+2:]
		}
	}

	Logger().Log(context.Background(), bw.level, msg, slog.String("component", component))
	return n, nil
}

// stripLogTimestamp drops the "15:04:05 " or "15:04:05.000000 " prefix the
// stdlib logger adds, since slog stamps its own time.
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

func canonicalComponent(cat string) string {
	switch cat {
	case "http", "http-server", "sse", "ws":
		return CompWeb
	case "tmux", "capture":
		return CompPane
	case "sqlite", "statedb", "localdb":
		return CompStore
	case "webpush", "vapid":
		return CompPush
	case "jsonl", "tail":
		return CompTranscript
	default:
		return cat
	}
}
