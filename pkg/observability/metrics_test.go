package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnConnect(ctx, &domain.SessionEvent{})
	hooks.OnConnect(ctx, &domain.SessionEvent{})
	hooks.OnDisconnect(ctx, &domain.SessionEvent{Duration: 3 * time.Second})
	hooks.OnResponse(ctx, &domain.RequestEvent{Endpoint: "echo", Outcome: "ok", Duration: time.Millisecond})
	hooks.OnResponse(ctx, &domain.RequestEvent{Endpoint: "echo", Outcome: "ok", Duration: time.Millisecond})
	hooks.OnResponse(ctx, &domain.RequestEvent{Endpoint: "attacker-controlled", Outcome: "unknown_endpoint"})
	hooks.OnFault(ctx, &domain.FaultEvent{Op: "send", Err: errors.New("broken pipe")})

	out := scrape(t, reg)
	assert.Contains(t, out, "tether_connections_total 2")
	assert.Contains(t, out, "tether_sessions_active 1")
	assert.Contains(t, out, `tether_requests_total{endpoint="echo",outcome="ok"} 2`)
	assert.Contains(t, out, `tether_requests_total{endpoint="",outcome="unknown_endpoint"} 1`)
	assert.NotContains(t, out, "attacker-controlled")
	assert.Contains(t, out, `tether_faults_total{op="send"} 1`)
	assert.Contains(t, out, "tether_session_duration_seconds_count 1")
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}
