package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/localdb"
	"github.com/orcadeck/orca/internal/logging"
)

const (
	defaultPushSubject = "mailto:orca@localhost"
	pushTTLSeconds     = 3600
)

// SubscriptionStore persists browser push subscriptions. localdb.LocalDB
// implements it.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]localdb.Subscription, error)
	UpsertSubscription(ctx context.Context, sub localdb.Subscription) error
	RemoveSubscription(ctx context.Context, endpoint string) error
	CountSubscriptions(ctx context.Context) (int, error)
}

// pushSubscription is the browser's PushSubscription.toJSON() shape.
type pushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime any                  `json:"expirationTime,omitempty"`
	Keys           pushSubscriptionKeys `json:"keys"`
}

type pushSubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (s pushSubscription) stored() localdb.Subscription {
	return localdb.Subscription{
		Endpoint: s.Endpoint,
		P256DH:   s.Keys.P256DH,
		Auth:     s.Keys.Auth,
	}.Normalize()
}

type webPushSender interface {
	Send(payload []byte, sub localdb.Subscription) (int, error)
}

type vapidPushSender struct {
	subject    string
	publicKey  string
	privateKey string
}

func (s *vapidPushSender) Send(payload []byte, sub localdb.Subscription) (int, error) {
	sub = sub.Normalize()
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256DH, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             pushTTLSeconds,
	})
	status := 0
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		status = resp.StatusCode
	}
	if err != nil {
		return status, err
	}
	if status >= 400 {
		return status, fmt.Errorf("push gateway status %d", status)
	}
	return status, nil
}

type pushTransition struct {
	Profile string
	Session attention.Flagged
	From    attention.Status
}

type pushMessage struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Tag        string `json:"tag,omitempty"`
	Renotify   bool   `json:"renotify,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Session    string `json:"session,omitempty"`
	Group      string `json:"group,omitempty"`
	Status     string `json:"status,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Path       string `json:"path,omitempty"`
	Timestamp  string `json:"timestamp"`
	RequireInt bool   `json:"requireInteraction,omitempty"`
}

type pushServiceAPI interface {
	Start(ctx context.Context)
	TriggerSync()
	Enabled() bool
	PublicKey() string
	Subject() string
	SubscriptionCount(ctx context.Context) (int, error)
	UpsertSubscription(ctx context.Context, sub localdb.Subscription) error
	RemoveSubscription(ctx context.Context, endpoint string) error
}

type countsLoader func(ctx context.Context) (attention.Counts, error)

// pushService polls attention counts and notifies subscribers when a
// session newly needs input or newly errors.
type pushService struct {
	publicKey  string
	privateKey string
	subject    string
	profile    string
	token      string

	load   countsLoader
	store  SubscriptionStore
	sender webPushSender

	pollInterval time.Duration

	startOnce sync.Once
	triggerCh chan struct{}

	mu          sync.Mutex
	initialized bool
	lastStatus  map[string]attention.Status
}

var pushLog = logging.ForComponent(logging.CompPush)

// newPushService returns nil, nil when no keys are configured.
func newPushService(cfg Config, load countsLoader) (pushServiceAPI, error) {
	publicKey := strings.TrimSpace(cfg.PushVAPIDPublicKey)
	privateKey := strings.TrimSpace(cfg.PushVAPIDPrivateKey)
	if publicKey == "" && privateKey == "" {
		return nil, nil
	}
	if publicKey == "" || privateKey == "" {
		return nil, errors.New("both push vapid public and private keys are required")
	}
	if cfg.PushStore == nil {
		return nil, errors.New("push subscription store is required")
	}
	subject := strings.TrimSpace(cfg.PushVAPIDSubject)
	if subject == "" {
		subject = defaultPushSubject
	}
	return &pushService{
		publicKey:    publicKey,
		privateKey:   privateKey,
		subject:      subject,
		profile:      cfg.Profile,
		token:        strings.TrimSpace(cfg.Token),
		load:         load,
		store:        cfg.PushStore,
		sender:       &vapidPushSender{subject: subject, publicKey: publicKey, privateKey: privateKey},
		pollInterval: cfg.PollInterval,
		triggerCh:    make(chan struct{}, 1),
		lastStatus:   make(map[string]attention.Status),
	}, nil
}

func (p *pushService) Start(ctx context.Context) {
	p.startOnce.Do(func() { go p.run(ctx) })
}

func (p *pushService) TriggerSync() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

func (p *pushService) Enabled() bool     { return p != nil }
func (p *pushService) PublicKey() string { return p.publicKey }
func (p *pushService) Subject() string   { return p.subject }

func (p *pushService) SubscriptionCount(ctx context.Context) (int, error) {
	return p.store.CountSubscriptions(ctx)
}

func (p *pushService) UpsertSubscription(ctx context.Context, sub localdb.Subscription) error {
	return p.store.UpsertSubscription(ctx, sub)
}

func (p *pushService) RemoveSubscription(ctx context.Context, endpoint string) error {
	return p.store.RemoveSubscription(ctx, endpoint)
}

func (p *pushService) run(ctx context.Context) {
	interval := p.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The first sync only records a baseline.
	p.syncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncOnce(ctx)
		case <-p.triggerCh:
			p.syncOnce(ctx)
		}
	}
}

func (p *pushService) syncOnce(ctx context.Context) {
	counts, err := p.load(ctx)
	if err != nil {
		pushLog.Error("push_counts_load_failed", slog.String("error", err.Error()))
		return
	}

	current := make(map[string]attention.Status, len(counts.Sessions))
	for _, f := range counts.Sessions {
		current[f.SessionID] = f.Status
	}

	p.mu.Lock()
	if !p.initialized {
		p.lastStatus = current
		p.initialized = true
		p.mu.Unlock()
		return
	}
	var transitions []pushTransition
	for _, f := range counts.Sessions {
		prev := p.lastStatus[f.SessionID]
		if prev == f.Status || !f.Status.Actionable() {
			continue
		}
		transitions = append(transitions, pushTransition{Profile: p.profile, Session: f, From: prev})
		pushLog.Debug("push_transition",
			slog.String("session", f.SessionID),
			slog.String("from", string(prev)),
			slog.String("to", string(f.Status)))
	}
	p.lastStatus = current
	p.mu.Unlock()

	for _, tr := range transitions {
		p.notifySubscribers(ctx, tr)
	}
}

func (p *pushService) notifySubscribers(ctx context.Context, tr pushTransition) {
	subs, err := p.store.ListSubscriptions(ctx)
	if err != nil {
		pushLog.Error("push_list_subscriptions_failed", slog.String("error", err.Error()))
		return
	}
	if len(subs) == 0 {
		return
	}

	status := string(tr.Session.Status)
	msg := pushMessage{
		Title:      pushTitle(tr),
		Body:       pushBody(tr),
		Tag:        fmt.Sprintf("orca-%s-%s", tr.Session.SessionID, status),
		Renotify:   true,
		SessionID:  tr.Session.SessionID,
		Session:    tr.Session.Title,
		Group:      tr.Session.GroupPath,
		Status:     status,
		Profile:    tr.Profile,
		Path:       p.routePath("/api/session/" + url.PathEscape(tr.Session.SessionID)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequireInt: tr.Session.Status == attention.Error,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		pushLog.Error("push_marshal_failed", slog.String("error", err.Error()))
		return
	}

	for _, sub := range subs {
		code, err := p.sender.Send(payload, sub)
		if err == nil {
			pushLog.Debug("push_sent",
				slog.String("endpoint", endpointForLog(sub.Endpoint)),
				slog.Int("http_status", code),
				slog.String("session", tr.Session.SessionID))
			continue
		}
		pushLog.Error("push_send_failed",
			slog.String("endpoint", endpointForLog(sub.Endpoint)),
			slog.Int("http_status", code),
			slog.String("session", tr.Session.SessionID),
			slog.String("error", err.Error()))
		if code == http.StatusGone || code == http.StatusNotFound {
			_ = p.store.RemoveSubscription(ctx, sub.Endpoint)
		}
	}
}

func sessionName(f attention.Flagged) string {
	if name := strings.TrimSpace(f.Title); name != "" {
		return name
	}
	if f.SessionID != "" {
		return f.SessionID
	}
	return "Session"
}

func pushTitle(tr pushTransition) string {
	if tr.Session.Status == attention.Error {
		return fmt.Sprintf("orca: %s (error)", sessionName(tr.Session))
	}
	return fmt.Sprintf("orca: %s needs input", sessionName(tr.Session))
}

func pushBody(tr pushTransition) string {
	name := sessionName(tr.Session)
	if tr.Session.GroupPath != "" {
		name = tr.Session.GroupPath + " / " + name
	}
	return fmt.Sprintf("%s is %s.", name, tr.Session.Status.Label())
}

func endpointForLog(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	endpoint = strings.TrimSpace(endpoint)
	if len(endpoint) <= 48 {
		return endpoint
	}
	return endpoint[:48] + "..."
}

func (p *pushService) routePath(basePath string) string {
	if p.token == "" {
		return basePath
	}
	u := &url.URL{Path: basePath}
	q := u.Query()
	q.Set("token", p.token)
	u.RawQuery = q.Encode()
	return u.String()
}
