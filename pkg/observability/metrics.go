package observability

import (
	"context"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "tether"

// Metrics collects session and request metrics.
type Metrics struct {
	sessions    prometheus.Gauge
	connections prometheus.Counter
	duration    *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	faults      *prometheus.CounterVec
	lifetime    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// Passing nil registers them with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions past the handshake and not yet closed",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of dispatched requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to reply",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "faults_total",
			Help:      "Total number of faults by operation",
		}, []string{"op"}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_duration_seconds",
			Help:      "Session lifetime from handshake to close",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{m.sessions, m.connections, m.requests, m.duration, m.faults, m.lifetime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnConnect: func(ctx context.Context, e *domain.SessionEvent) {
			m.connections.Inc()
			m.sessions.Inc()
		},
		OnDisconnect: func(ctx context.Context, e *domain.SessionEvent) {
			m.sessions.Dec()
			m.lifetime.Observe(e.Duration.Seconds())
		},
		OnResponse: func(ctx context.Context, e *domain.RequestEvent) {
			endpoint := e.Endpoint
			if e.Outcome == domain.OutcomeUnknownEndpoint {
				// Unbounded label values would come from the peer.
				endpoint = ""
			}
			m.requests.WithLabelValues(endpoint, e.Outcome).Inc()
			if e.Duration > 0 {
				m.duration.WithLabelValues(endpoint).Observe(e.Duration.Seconds())
			}
		},
		OnFault: func(ctx context.Context, e *domain.FaultEvent) {
			m.faults.WithLabelValues(e.Op).Inc()
		},
	}
}
