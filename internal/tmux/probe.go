// Package tmux snapshots tmux panes and looks for permission prompts in
// the visible text.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/orcadeck/orca/internal/logging"
)

var paneLog = logging.ForComponent(logging.CompPane)

// DefaultPaneLines is how many trailing lines are inspected.
const DefaultPaneLines = 20

// ErrNoTmux is returned when the tmux binary is not on PATH.
var ErrNoTmux = errors.New("tmux not found in PATH")

// Capturer returns the text of the last lines of a pane.
type Capturer interface {
	Capture(ctx context.Context, target string, lines int) (string, error)
}

// ExecCapturer runs `tmux capture-pane`.
type ExecCapturer struct {
	// Binary defaults to "tmux"
	Binary string
}

// Capture prints the pane with wrapped lines joined, starting lines rows
// above the visible area so short panes still yield enough text.
func (e ExecCapturer) Capture(ctx context.Context, target string, lines int) (string, error) {
	bin := e.Binary
	if bin == "" {
		bin = "tmux"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", ErrNoTmux
	}
	cmd := exec.CommandContext(ctx, bin, "capture-pane", "-p", "-J", "-t", target, "-S", "-"+strconv.Itoa(lines))
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to capture pane %s: %w", target, err)
	}
	return string(out), nil
}

// Probe implements attention.PaneProbe on top of a Capturer.
type Probe struct {
	capturer Capturer
	lines    int
	markers  *Markers
	sf       singleflight.Group
}

// NewProbe builds a probe. A nil capturer uses ExecCapturer; lines <= 0
// uses DefaultPaneLines; nil markers use DefaultMarkers.
func NewProbe(capturer Capturer, lines int, markers *Markers) *Probe {
	if capturer == nil {
		capturer = ExecCapturer{}
	}
	if lines <= 0 {
		lines = DefaultPaneLines
	}
	if markers == nil {
		markers = DefaultMarkers()
	}
	return &Probe{capturer: capturer, lines: lines, markers: markers}
}

// Snapshot returns the last lines of the pane. Concurrent calls for the
// same pane share one subprocess.
func (p *Probe) Snapshot(ctx context.Context, target string) (string, error) {
	v, err, _ := p.sf.Do(target, func() (interface{}, error) {
		out, err := p.capturer.Capture(ctx, target, p.lines)
		if err != nil {
			return "", err
		}
		return strings.Join(lastNLines(out, p.lines), "\n"), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// WaitingForInput reports whether the pane shows a permission prompt. Any
// capture failure reads as false.
func (p *Probe) WaitingForInput(ctx context.Context, target string) bool {
	if target == "" {
		return false
	}
	text, err := p.Snapshot(ctx, target)
	if err != nil {
		logging.Aggregate(logging.CompPane, "capture_failed", slog.String("error", err.Error()))
		paneLog.Debug("capture_failed", slog.String("pane", target), slog.String("error", err.Error()))
		return false
	}
	hit := p.markers.Match(text)
	if hit {
		paneLog.Debug("prompt_detected", slog.String("pane", target))
	}
	return hit
}

// lastNLines drops trailing blank lines and returns at most n lines.
func lastNLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	return lines[start:]
}
