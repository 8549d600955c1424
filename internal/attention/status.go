// Package attention decides whether a coding-agent session needs a human,
// by combining the supervisor's coarse status, the tail of the session's
// transcript and, optionally, a snapshot of its tmux pane.
package attention

import (
	"fmt"
	"strings"
)

// Status is the refined attention state of a session.
type Status string

const (
	NeedsInput Status = "needs_input"
	Error      Status = "error"
	Running    Status = "running"
	Idle       Status = "idle"
	Stale      Status = "stale"
	Unknown    Status = "unknown"
)

// Actionable reports whether the status should be surfaced to the user.
func (s Status) Actionable() bool {
	return s == NeedsInput || s == Error
}

// Rank orders statuses for "worst wins" reductions. Higher is more urgent.
func (s Status) Rank() int {
	switch s {
	case NeedsInput:
		return 5
	case Error:
		return 4
	case Stale:
		return 3
	case Running:
		return 2
	case Idle:
		return 1
	}
	return 0
}

// Label is a short human label.
func (s Status) Label() string {
	switch s {
	case NeedsInput:
		return "needs input"
	case "":
		return string(Unknown)
	}
	return string(s)
}

// ParseStatus maps a serialized status back, returning Unknown for
// anything unrecognised.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case NeedsInput:
		return NeedsInput
	case Error:
		return Error
	case Running:
		return Running
	case Idle:
		return Idle
	case Stale:
		return Stale
	}
	return Unknown
}

// ParseStatusList parses a comma-separated list such as
// "needs_input,error". Unrecognised names are an error.
func ParseStatusList(s string) ([]Status, error) {
	var out []Status
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		st := ParseStatus(part)
		if st == Unknown && part != string(Unknown) {
			return nil, fmt.Errorf("unknown attention status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

// CoarseStatus is the supervisor's lifecycle status. Values other than the
// four known ones are kept verbatim.
type CoarseStatus string

const (
	CoarseRunning CoarseStatus = "running"
	CoarseWaiting CoarseStatus = "waiting"
	CoarseError   CoarseStatus = "error"
	CoarseIdle    CoarseStatus = "idle"
)

// ParseCoarse converts a raw status string.
func ParseCoarse(s string) CoarseStatus {
	return CoarseStatus(s)
}

// IsOther reports whether the value is none of the known statuses.
func (c CoarseStatus) IsOther() bool {
	switch c {
	case CoarseRunning, CoarseWaiting, CoarseError, CoarseIdle:
		return false
	}
	return true
}

// coarseFallback is used when the transcript carries no signal.
func coarseFallback(c CoarseStatus) Status {
	switch c {
	case CoarseWaiting:
		return Idle
	case CoarseRunning:
		return Running
	case CoarseError:
		return Error
	}
	return Unknown
}
