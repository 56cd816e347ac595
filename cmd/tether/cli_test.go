package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tether/internal/config"
	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "tether version")
}

func TestRenderPeers(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := renderPeers([]domain.Peer{{
		ID:          "abc",
		Path:        "/ws",
		RemoteAddr:  "10.0.0.1:1234",
		ConnectedAt: now.Add(-90 * time.Second),
	}}, now)

	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "10.0.0.1:1234")
	assert.Contains(t, out, "1m30s")
}

func TestListFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		w.Write([]byte(`[{"id":"s1","path":"/ws","connected_at":"2026-01-02T03:04:05Z"}]`))
	}))
	defer srv.Close()

	peers, err := listFromServer(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "s1", peers[0].ID)
}

func TestListFromServer_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "redis down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := listFromServer(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestServerInfoListsDemoEndpoints(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	_, srv, err := newDomain(cfg, logging.NewNop(), memory.NewDirectory())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var info struct {
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Subset(t, info.Endpoints, []string{"echo", "add", "divide", "ticks"})
}

func TestDemoHandlers(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	dir := memory.NewDirectory()
	d, _, err := newDomain(cfg, logging.NewNop(), dir)
	require.NoError(t, err)

	tr := memory.NewTransport()
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), tr) }()

	next := func() string {
		select {
		case frame := <-tr.Outbound():
			return string(frame)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a frame")
			return ""
		}
	}

	assert.Contains(t, next(), `"kind":"init"`)

	tr.Push([]byte(`{"id":"1","type":"request","endpoint":"add","data":{"a":2,"b":3.5}}`))
	assert.JSONEq(t, `{"id":"1","type":"response","data":5.5}`, next())

	tr.Push([]byte(`{"id":"2","type":"request","endpoint":"divide","data":{"a":1,"b":0}}`))
	assert.JSONEq(t, `{"id":"2","type":"response.error","data":{"reason":"division by zero","code":"E_DIV_ZERO"}}`, next())

	tr.Push([]byte(`{"id":"3","type":"request","endpoint":"echo","data":{"x":[1,2]}}`))
	assert.JSONEq(t, `{"id":"3","type":"response","data":{"x":[1,2]}}`, next())

	tr.Push([]byte(`{"id":"4","type":"request","endpoint":"count","data":null}`))
	assert.JSONEq(t, `{"id":"4","type":"response","data":1}`, next())
	tr.Push([]byte(`{"id":"5","type":"request","endpoint":"count","data":null}`))
	assert.JSONEq(t, `{"id":"5","type":"response","data":2}`, next())

	tr.Push([]byte(`{"id":"6","type":"request","endpoint":"notify","data":{}}`))
	frame := next()
	assert.Contains(t, frame, `"response.error"`)
	assert.Contains(t, frame, `"validation-error"`)

	tr.Push([]byte(`{"id":"7","type":"request","endpoint":"ticks","data":{"count":2}}`))
	assert.JSONEq(t, `{"id":"7","type":"response","data":2}`, next())
	assert.JSONEq(t, `{"type":"event","kind":"tick","data":1}`, next())
	assert.JSONEq(t, `{"type":"event","kind":"tick","data":2}`, next())

	peers, err := dir.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 1)

	tr.Disconnect()
	require.NoError(t, <-done)
	assert.False(t, strings.Contains(drainOutbound(tr), "error"))
}

// drainOutbound returns whatever is left after close.
func drainOutbound(tr *memory.Transport) string {
	var b strings.Builder
	for frame := range tr.Outbound() {
		b.Write(frame)
	}
	return b.String()
}
