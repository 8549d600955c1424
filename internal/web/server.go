// Package web serves attention state over HTTP: JSON endpoints, an SSE
// stream, a WebSocket feed and Web Push notifications.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/logging"
	"github.com/orcadeck/orca/internal/monitor"
)

const defaultPollInterval = 5 * time.Second

// AttentionSource answers the queries the server exposes. monitor.Service
// implements it.
type AttentionSource interface {
	Counts(ctx context.Context) (attention.Counts, error)
	Sessions(ctx context.Context, f monitor.Filter) ([]monitor.SessionView, error)
	Session(ctx context.Context, id string, probe bool) (monitor.SessionView, error)
}

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Profile    string
	Token      string
	Source     AttentionSource

	// WatchPaths are directories whose changes trigger an immediate
	// re-check (transcripts root, state.db directory)
	WatchPaths []string

	// PollInterval bounds how stale streamed counts can get without
	// filesystem events
	PollInterval time.Duration

	PushStore           SubscriptionStore
	PushVAPIDPublicKey  string
	PushVAPIDPrivateKey string
	PushVAPIDSubject    string
}

// Server wraps an HTTP server for orca's web mode.
type Server struct {
	cfg        Config
	httpServer *http.Server
	source     AttentionSource
	push       pushServiceAPI
	watcher    *changeWatcher
	baseCtx    context.Context
	cancelBase context.CancelFunc

	subscribersMu sync.Mutex
	subscribers   map[chan struct{}]struct{}
}

var webLog = logging.ForComponent(logging.CompWeb)

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	s := &Server{
		cfg:         cfg,
		source:      cfg.Source,
		subscribers: make(map[chan struct{}]struct{}),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	if pushSvc, err := newPushService(cfg, s.countsLoader()); err != nil {
		webLog.Warn("push_disabled", slog.String("error", err.Error()))
	} else if pushSvc != nil {
		s.push = pushSvc
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/attention", s.handleAttention)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/session/", s.handleSessionByID)
	mux.HandleFunc("/api/push/config", s.handlePushConfig)
	mux.HandleFunc("/api/push/subscribe", s.handlePushSubscribe)
	mux.HandleFunc("/api/push/unsubscribe", s.handlePushUnsubscribe)
	mux.HandleFunc("/events/attention", s.handleAttentionEvents)
	mux.HandleFunc("/ws/attention", s.handleAttentionWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logging.NewBridgeWriter(logging.CompWeb), "", 0),
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until shutdown. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	if len(s.cfg.WatchPaths) > 0 {
		w, err := newChangeWatcher(s.cfg.WatchPaths, s.onFilesystemChange)
		if err != nil {
			webLog.Warn("change_watcher_disabled", slog.String("error", err.Error()))
		} else {
			s.watcher = w
			go w.Run(s.baseCtx)
		}
	}
	if s.push != nil {
		s.push.Start(s.baseCtx)
	}

	webLog.Info("server_start", slog.String("addr", s.cfg.ListenAddr), slog.String("profile", s.cfg.Profile))
	err := s.httpServer.ListenAndServe()
	s.stopWatcher()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, force-closing long-lived streams when the
// graceful window runs out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}
	s.stopWatcher()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) stopWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

func (s *Server) onFilesystemChange() {
	s.notifyChanged()
	if s.push != nil {
		s.push.TriggerSync()
	}
}

func (s *Server) countsLoader() func(ctx context.Context) (attention.Counts, error) {
	return func(ctx context.Context) (attention.Counts, error) {
		if s.source == nil {
			return attention.Counts{}, errSourceMissing
		}
		return s.source.Counts(ctx)
	}
}

var errSourceMissing = errors.New("attention source is not configured")

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"ok":      true,
		"profile": s.cfg.Profile,
		"push":    s.push != nil && s.push.Enabled(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, profile=%s)", s.cfg.ListenAddr, s.cfg.Profile)
}

func (s *Server) subscribeChanges() chan struct{} {
	ch := make(chan struct{}, 1)
	s.subscribersMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subscribersMu.Unlock()
	return ch
}

func (s *Server) unsubscribeChanges(ch chan struct{}) {
	if ch == nil {
		return
	}
	s.subscribersMu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subscribersMu.Unlock()
}

func (s *Server) notifyChanged() {
	s.subscribersMu.Lock()
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subscribersMu.Unlock()
}
