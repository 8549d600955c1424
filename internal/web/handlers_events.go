package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var eventsHeartbeatInterval = 15 * time.Second

// handleAttentionEvents streams "attention" events: the current counts on
// connect, then again whenever the fingerprint changes.
func (s *Server) handleAttentionEvents(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}
	if s.source == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", errSourceMissing.Error())
		return
	}

	ctx := r.Context()
	first, err := s.loadAttention(ctx)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load attention counts")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := attentionFingerprint(first)
	if err := writeSSEEvent(w, flusher, "attention", first); err != nil {
		return
	}

	changes := s.subscribeChanges()
	defer s.unsubscribeChanges(changes)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(eventsHeartbeatInterval)
	defer heartbeat.Stop()

	emitIfChanged := func() error {
		next, err := s.loadAttention(ctx)
		if err != nil {
			webLog.Error("attention_stream_refresh_failed", slog.String("error", err.Error()))
			return nil
		}
		fp := attentionFingerprint(next)
		if fp == last {
			return nil
		}
		if err := writeSSEEvent(w, flusher, "attention", next); err != nil {
			return err
		}
		last = fp
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		case <-changes:
			if err := emitIfChanged(); err != nil {
				return
			}
		case <-poll.C:
			if err := emitIfChanged(); err != nil {
				return
			}
		}
	}
}

func (s *Server) loadAttention(ctx context.Context) (attentionResponse, error) {
	counts, err := s.source.Counts(ctx)
	if err != nil {
		return attentionResponse{}, err
	}
	return s.newAttentionResponse(counts), nil
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// attentionFingerprint hashes the parts of a response that clients render.
func attentionFingerprint(resp attentionResponse) string {
	raw, err := json.Marshal(resp)
	if err != nil {
		return "marshal-error"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
