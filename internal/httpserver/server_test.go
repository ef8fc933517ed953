package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/observability"
	"github.com/tphakala/streambridge/internal/session"
)

type fixedStatus session.Status

func (f fixedStatus) Snapshot() session.Status {
	return session.Status(f)
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	m.Session.AddFedBytes(3840)

	status := fixedStatus{ID: "abc", State: "playing", Destination: "out.ogg", FedBytes: 3840}
	srv := New("127.0.0.1:0", status, m.Handler())

	tests := []struct {
		name     string
		path     string
		code     int
		contains string
	}{
		{"health", "/healthz", http.StatusOK, `"status":"ok"`},
		{"session", "/api/v1/session", http.StatusOK, `"state":"playing"`},
		{"metrics", "/metrics", http.StatusOK, "streambridge_fed_bytes_total 3840"},
		{"unknown", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestSessionSnapshotJSON(t *testing.T) {
	t.Parallel()

	status := fixedStatus{ID: "abc", State: "stopped", LastError: "network-output: Could not connect", QueuedBytes: 12}
	srv := New("127.0.0.1:0", status, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var got session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, session.Status(status), got)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics route is only added with a handler")
}

func TestNoSession(t *testing.T) {
	t.Parallel()

	srv := New("127.0.0.1:0", nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	t.Parallel()

	srv := New("127.0.0.1:0", fixedStatus{State: "initialized"}, nil)
	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	http.DefaultClient.CloseIdleConnections()
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	t.Parallel()

	first := New("127.0.0.1:0", nil, nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second := New(first.Addr(), nil, nil)
	assert.Error(t, second.Start())
}
