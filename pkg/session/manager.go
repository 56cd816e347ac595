package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/invoke"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/registry"
)

// Manager serves sessions for one set of handlers.
type Manager struct {
	registry  *registry.Registry
	invoker   *invoke.Invoker
	directory ports.SessionDirectory // Optional
	refresh   time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	path      string

	// cancelOnDisconnect cancels the context of in-flight handlers at Draining.
	cancelOnDisconnect bool

	mu   sync.RWMutex
	live map[string]*Session
	wg   sync.WaitGroup
}

// Option configures the Manager.
type Option func(*Manager)

// WithDirectory advertises live sessions in dir.
func WithDirectory(dir ports.SessionDirectory) Option {
	return func(m *Manager) {
		m.directory = dir
	}
}

// WithDirectoryRefresh re-registers each live session every interval, for
// directories whose entries expire.
func WithDirectoryRefresh(interval time.Duration) Option {
	return func(m *Manager) {
		m.refresh = interval
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = m.hooks.Merge(hooks)
	}
}

// WithLogger configures a logger for the Manager and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPath records the route sessions are served on (used in events and the directory).
func WithPath(path string) Option {
	return func(m *Manager) {
		m.path = path
	}
}

// WithCancelOnDisconnect makes teardown cancel the context handed to
// still-running handlers. By default they are outlived, not cancelled.
func WithCancelOnDisconnect(cancel bool) Option {
	return func(m *Manager) {
		m.cancelOnDisconnect = cancel
	}
}

// NewManager creates a Manager for the handlers in reg.
func NewManager(reg *registry.Registry, invoker *invoke.Invoker, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		invoker:  invoker,
		logger:   logging.NewNop(), // Default to no-op
		live:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Serve runs one session over tr until the peer disconnects and teardown
// completes. It only returns an error when the handshake fails.
func (m *Manager) Serve(ctx context.Context, tr ports.Transport) error {
	s := newSession(m, tr)
	return s.run(ctx)
}

// Sessions returns the sessions currently past the handshake.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// Wait blocks until every session and every handler it dispatched has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) attach(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[s.id] = s
}

func (m *Manager) detach(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, s.id)
}
