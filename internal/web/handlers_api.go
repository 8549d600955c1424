package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/monitor"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type attentionResponse struct {
	Profile  string              `json:"profile"`
	Total    int                 `json:"total"`
	Groups   map[string]string   `json:"groups"`
	Sessions []attention.Flagged `json:"sessions"`
}

type sessionsResponse struct {
	Profile  string                `json:"profile"`
	Sessions []monitor.SessionView `json:"sessions"`
}

func (s *Server) newAttentionResponse(c attention.Counts) attentionResponse {
	resp := attentionResponse{
		Profile:  s.cfg.Profile,
		Total:    c.Total,
		Groups:   c.Groups,
		Sessions: c.Sessions,
	}
	if resp.Groups == nil {
		resp.Groups = map[string]string{}
	}
	if resp.Sessions == nil {
		resp.Sessions = []attention.Flagged{}
	}
	return resp
}

func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	if s.source == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", errSourceMissing.Error())
		return
	}
	counts, err := s.source.Counts(r.Context())
	if err != nil {
		webLog.Error("attention_load_failed", slog.String("error", err.Error()))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load attention counts")
		return
	}
	writeJSON(w, http.StatusOK, s.newAttentionResponse(counts))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	if s.source == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", errSourceMissing.Error())
		return
	}

	q := r.URL.Query()
	filter := monitor.Filter{Group: q.Get("group"), Probe: queryBool(q.Get("probe"))}
	for _, raw := range q["attention"] {
		statuses, err := attention.ParseStatusList(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		filter.Attention = append(filter.Attention, statuses...)
	}
	if _, err := monitor.CompileGroupFilter(filter.Group); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	views, err := s.source.Sessions(r.Context(), filter)
	if err != nil {
		webLog.Error("sessions_load_failed", slog.String("error", err.Error()))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load sessions")
		return
	}
	if views == nil {
		views = []monitor.SessionView{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Profile: s.cfg.Profile, Sessions: views})
}

// handleSessionByID serves one session. Pane refinement is on unless
// ?probe=false.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	const prefix = "/api/session/"
	sessionID := strings.TrimPrefix(r.URL.Path, prefix)
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required")
		return
	}
	if s.source == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", errSourceMissing.Error())
		return
	}

	probe := true
	if raw := r.URL.Query().Get("probe"); raw != "" {
		probe = queryBool(raw)
	}
	view, err := s.source.Session(r.Context(), sessionID, probe)
	if errors.Is(err, monitor.ErrSessionNotFound) {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	if err != nil {
		webLog.Error("session_load_failed", slog.String("session", sessionID), slog.String("error", err.Error()))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func queryBool(raw string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}
