package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(srv *Server, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestPushConfigDisabled(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr := serve(srv, http.MethodGet, "/api/push/config")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"enabled":false`)

	rr = post(srv, "/api/push/subscribe", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "PUSH_NOT_CONFIGURED")
}

func TestPushSubscribeAndUnsubscribe(t *testing.T) {
	store := openPushStore(t)
	srv, _ := newTestServer(t, Config{
		PushVAPIDPublicKey:  "pub-key",
		PushVAPIDPrivateKey: "priv-key",
		PushStore:           store,
	})

	rr := serve(srv, http.MethodGet, "/api/push/config")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"enabled":true`)
	assert.Contains(t, rr.Body.String(), `"vapidPublicKey":"pub-key"`)
	assert.Contains(t, rr.Body.String(), `"subscriptionCount":1`)

	rr = post(srv, "/api/push/subscribe",
		`{"endpoint":"https://push.example/sub-b","expirationTime":null,"keys":{"p256dh":"p","auth":"a"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	n, err := store.CountSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rr = post(srv, "/api/push/subscribe", `{"endpoint":"https://push.example/sub-c","keys":{"p256dh":"p"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "keys.auth")

	rr = post(srv, "/api/push/subscribe", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(srv, "/api/push/unsubscribe", `{"endpoint":"https://push.example/sub-b"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	n, err = store.CountSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rr = post(srv, "/api/push/unsubscribe", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(srv, http.MethodGet, "/api/push/subscribe").Code)
}
