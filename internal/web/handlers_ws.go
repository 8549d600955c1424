package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

type wsClientMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type      string             `json:"type"` // attention, status, error
	Event     string             `json:"event,omitempty"`
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message,omitempty"`
	Profile   string             `json:"profile,omitempty"`
	Attention *attentionResponse `json:"attention,omitempty"`
	Time      time.Time          `json:"time"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes; gorilla connections allow one writer.
type wsConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

// handleAttentionWS pushes attention snapshots over a WebSocket. Clients
// may send {"type":"ping"} or {"type":"refresh"}.
func (s *Server) handleAttentionWS(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	if s.source == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", errSourceMissing.Error())
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	writer := &wsConnWriter{conn: conn}
	ctx := r.Context()

	_ = writer.WriteJSON(wsServerMessage{
		Type:    "status",
		Event:   "connected",
		Profile: s.cfg.Profile,
		Time:    time.Now().UTC(),
	})

	var last string
	send := func(force bool) error {
		resp, err := s.loadAttention(ctx)
		if err != nil {
			webLog.Error("attention_ws_refresh_failed", slog.String("error", err.Error()))
			return writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "LOAD_FAILED",
				Message: "failed to load attention counts",
				Time:    time.Now().UTC(),
			})
		}
		fp := attentionFingerprint(resp)
		if !force && fp == last {
			return nil
		}
		last = fp
		return writer.WriteJSON(wsServerMessage{Type: "attention", Attention: &resp, Time: time.Now().UTC()})
	}
	if err := send(true); err != nil {
		return
	}

	clientMsgs := make(chan wsClientMessage)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived) {
					webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
				}
				return
			}
			var msg wsClientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				_ = writer.WriteJSON(wsServerMessage{
					Type:    "error",
					Code:    "INVALID_MESSAGE",
					Message: "invalid json payload",
					Time:    time.Now().UTC(),
				})
				continue
			}
			select {
			case clientMsgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	changes := s.subscribeChanges()
	defer s.unsubscribeChanges(changes)
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-changes:
			err = send(false)
		case <-poll.C:
			err = send(false)
		case msg := <-clientMsgs:
			switch msg.Type {
			case "ping":
				err = writer.WriteJSON(wsServerMessage{Type: "status", Event: "pong", Time: time.Now().UTC()})
			case "refresh":
				err = send(true)
			default:
				err = writer.WriteJSON(wsServerMessage{
					Type:    "error",
					Code:    "UNSUPPORTED_MESSAGE",
					Message: "supported message types: ping,refresh",
					Time:    time.Now().UTC(),
				})
			}
		}
		if err != nil {
			return
		}
	}
}
