package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcadeck/orca/internal/attention"
	"github.com/orcadeck/orca/internal/monitor"
	"github.com/orcadeck/orca/internal/summary"
)

type fakeSource struct {
	mu         sync.Mutex
	counts     attention.Counts
	views      []monitor.SessionView
	lastFilter monitor.Filter
	lastProbe  bool
	err        error
}

func (f *fakeSource) setCounts(c attention.Counts) {
	f.mu.Lock()
	f.counts = c
	f.mu.Unlock()
}

func (f *fakeSource) Counts(context.Context) (attention.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts, f.err
}

func (f *fakeSource) Sessions(_ context.Context, filter monitor.Filter) ([]monitor.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return f.views, f.err
}

func (f *fakeSource) Session(_ context.Context, id string, probe bool) (monitor.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastProbe = probe
	for _, v := range f.views {
		if v.ID == id {
			return v, nil
		}
	}
	return monitor.SessionView{}, monitor.ErrSessionNotFound
}

func flagged(id, group string, st attention.Status) attention.Flagged {
	return attention.Flagged{
		Candidate: attention.Candidate{SessionID: id, Title: id + "-title", GroupPath: group},
		Status:    st,
	}
}

func oneWaiting() attention.Counts {
	return attention.Counts{
		Total:    1,
		Groups:   map[string]string{"work": attention.GroupWaiting},
		Sessions: []attention.Flagged{flagged("s1", "work", attention.NeedsInput)},
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *fakeSource) {
	t.Helper()
	src, _ := cfg.Source.(*fakeSource)
	if src == nil {
		src = &fakeSource{counts: oneWaiting()}
		cfg.Source = src
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	return NewServer(cfg), src
}

func serve(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Config{Profile: "test"})

	rr := serve(srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok":true`)
	assert.Contains(t, rr.Body.String(), `"profile":"test"`)
	assert.Contains(t, rr.Body.String(), `"push":false`)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(srv, http.MethodPost, "/healthz").Code)
}

func TestAttentionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Config{Profile: "work"})

	rr := serve(srv, http.MethodGet, "/api/attention")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp attentionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "work", resp.Profile)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, map[string]string{"work": "waiting"}, resp.Groups)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "s1", resp.Sessions[0].SessionID)
	assert.Equal(t, attention.NeedsInput, resp.Sessions[0].Status)
	assert.Contains(t, rr.Body.String(), `"attention":"needs_input"`)
}

func TestAttentionEndpointEmptyCountsSerializeAsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, Config{Source: &fakeSource{}})

	rr := serve(srv, http.MethodGet, "/api/attention")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"groups":{}`)
	assert.Contains(t, rr.Body.String(), `"sessions":[]`)
}

func TestTokenAuth(t *testing.T) {
	srv, _ := newTestServer(t, Config{Token: "secret-token"})

	rr := serve(srv, http.MethodGet, "/api/attention")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/api/attention?token=secret-token").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/attention", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionsEndpointFilters(t *testing.T) {
	srv, src := newTestServer(t, Config{})
	src.views = []monitor.SessionView{{ID: "s1", GroupPath: "work"}}

	rr := serve(srv, http.MethodGet, "/api/sessions?group=work/**&attention=needs_input,error&probe=true")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "work/**", src.lastFilter.Group)
	assert.Equal(t, []attention.Status{attention.NeedsInput, attention.Error}, src.lastFilter.Attention)
	assert.True(t, src.lastFilter.Probe)

	var resp sessionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)

	assert.Equal(t, http.StatusBadRequest, serve(srv, http.MethodGet, "/api/sessions?attention=waiting").Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, http.MethodGet, "/api/sessions?group=work/[a").Code)
}


func TestSessionByIDEndpoint(t *testing.T) {
	srv, src := newTestServer(t, Config{})
	text := "Which framework?"
	src.views = []monitor.SessionView{{
		ID:             "s1",
		SessionSummary: summary.SessionSummary{Attention: attention.NeedsInput, LastText: &text},
	}}

	rr := serve(srv, http.MethodGet, "/api/session/s1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, src.lastProbe)
	assert.Contains(t, rr.Body.String(), `"last_text":"Which framework?"`)
	assert.Contains(t, rr.Body.String(), `"summary":null`)

	serve(srv, http.MethodGet, "/api/session/s1?probe=false")
	assert.False(t, src.lastProbe)

	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/session/missing").Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, http.MethodGet, "/api/session/").Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, http.MethodGet, "/api/session/a/b").Code)
}

func TestSourceErrorsBecome500(t *testing.T) {
	srv, _ := newTestServer(t, Config{Source: &fakeSource{err: context.DeadlineExceeded}})
	rr := serve(srv, http.MethodGet, "/api/attention")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"INTERNAL_ERROR"`)
}

func TestWithRecover(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
