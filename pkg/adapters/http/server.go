package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/adapters/websocket"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPath is the route WebSocket sessions are served on.
const DefaultPath = "/ws"

// Server exposes a session Manager over HTTP.
type Server struct {
	Manager   *session.Manager
	Directory ports.SessionDirectory // Optional; live sessions of this process otherwise
	Gatherer  prometheus.Gatherer    // Optional; /metrics is not mounted when nil

	path      string
	version   string
	endpoints func() []string
	transport []websocket.Option
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithPath sets the WebSocket route. chi patterns such as "/ws/{room}" are
// allowed; their parameters become the session's path params.
func WithPath(path string) Option {
	return func(s *Server) {
		s.path = path
	}
}

// WithDirectory makes /sessions list dir instead of the local manager.
func WithDirectory(dir ports.SessionDirectory) Option {
	return func(s *Server) {
		s.Directory = dir
	}
}

// WithMetrics mounts /metrics for g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Gatherer = g
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithEndpoints sets the source of the endpoint names reported by /info.
func WithEndpoints(fn func() []string) Option {
	return func(s *Server) {
		s.endpoints = fn
	}
}

// WithTransportOptions configures every upgraded connection.
func WithTransportOptions(opts ...websocket.Option) Option {
	return func(s *Server) {
		s.transport = append(s.transport, opts...)
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server for m.
func NewServer(m *session.Manager, opts ...Option) *Server {
	s := &Server{
		Manager: m,
		path:    DefaultPath,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for m.
func NewHandler(m *session.Manager, opts ...Option) http.Handler {
	return NewServer(m, opts...).Routes()
}

// Routes returns a router with every endpoint of the server mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	s.Mount(r)
	return r
}

// Mount registers the server's endpoints on an existing router.
func (s *Server) Mount(r chi.Router) {
	r.Get(s.path, s.ServeWS)
	r.Group(func(r chi.Router) {
		r.Use(enableCORS)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Get("/sessions", s.ListSessions)
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeWS upgrades the request and serves one session until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	tr := websocket.New(w, r, s.transport...)
	if err := s.Manager.Serve(r.Context(), tr); err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket handshake failed", "remote_addr", r.RemoteAddr, "err", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{}
	if s.endpoints != nil {
		endpoints = append(endpoints, s.endpoints()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app":       "tether",
		"version":   s.version,
		"path":      s.path,
		"endpoints": endpoints,
		"sessions":  s.Manager.Count(),
	}, s.logger)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	var peers []domain.Peer
	if s.Directory != nil {
		var err error
		peers, err = s.Directory.List(r.Context())
		if err != nil {
			s.logger.Error("failed to list sessions", "err", err)
			http.Error(w, "failed to list sessions", http.StatusServiceUnavailable)
			return
		}
	} else {
		for _, sess := range s.Manager.Sessions() {
			peers = append(peers, domain.Peer{
				ID:          sess.ID(),
				Path:        s.path,
				ConnectedAt: sess.ConnectedAt().UTC().Truncate(time.Millisecond),
			})
		}
		sort.Slice(peers, func(i, j int) bool {
			return peers[i].ConnectedAt.Before(peers[j].ConnectedAt)
		})
	}
	if peers == nil {
		peers = []domain.Peer{}
	}
	writeJSON(w, http.StatusOK, peers, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
