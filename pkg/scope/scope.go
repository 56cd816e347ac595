// Package scope holds the connection-scoped values shared by every handler of one session.
package scope

import (
	"maps"
	"net/http"
	"net/url"
	"sync"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// Scope is the per-connection mapping of named values available to handlers.
//
// One Scope is created per connection and shared by pointer across all
// handlers for its lifetime. Keys are only ever added or overwritten. A
// per-request view (see Overlay) reads request-local values first and writes
// through to the connection scope.
type Scope struct {
	mu      *sync.RWMutex
	values  map[string]any
	overlay map[string]any
	root    *Scope
}

// New creates an empty connection scope.
func New() *Scope {
	s := &Scope{
		mu:     &sync.RWMutex{},
		values: make(map[string]any),
	}
	s.root = s
	return s
}

// Build assembles the base connection scope from handshake metadata and the
// two sender capabilities.
func Build(meta ports.Metadata, sendEvent domain.SendEvent, sendError domain.SendError) *Scope {
	s := New()
	s.values[domain.KeyHeaders] = meta.Headers()
	s.values[domain.KeyCookies] = meta.Cookies()
	s.values[domain.KeyQueryParams] = meta.QueryParams()
	s.values[domain.KeyPathParams] = meta.PathParams()
	s.values[domain.KeySendEvent] = sendEvent
	s.values[domain.KeySendError] = sendError
	return s
}

// Overlay returns a per-request view: extra keys shadow the connection scope
// for reads, while Set still writes to the shared connection scope.
func (s *Scope) Overlay(extra map[string]any) *Scope {
	merged := make(map[string]any, len(s.overlay)+len(extra))
	maps.Copy(merged, s.overlay)
	maps.Copy(merged, extra)
	return &Scope{
		mu:      s.mu,
		values:  s.values,
		overlay: merged,
		root:    s.root,
	}
}

// Root returns the connection scope this view belongs to.
func (s *Scope) Root() *Scope {
	return s.root
}

// Lookup returns the value for key and whether it exists.
func (s *Scope) Lookup(key string) (any, bool) {
	if v, ok := s.overlay[key]; ok {
		return v, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Get returns the value for key, or nil.
func (s *Scope) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Set stores a value in the connection scope.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// SetDefault stores value only if key is absent and returns the value in effect.
func (s *Scope) SetDefault(key string, value any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing
	}
	s.values[key] = value
	return value
}

// Snapshot returns a copy of every visible key.
func (s *Scope) Snapshot() map[string]any {
	s.mu.RLock()
	out := make(map[string]any, len(s.values)+len(s.overlay))
	maps.Copy(out, s.values)
	s.mu.RUnlock()
	maps.Copy(out, s.overlay)
	return out
}

// Len returns the number of visible keys.
func (s *Scope) Len() int {
	return len(s.Snapshot())
}

func (s *Scope) Headers() http.Header {
	h, _ := s.Get(domain.KeyHeaders).(http.Header)
	return h
}

func (s *Scope) Cookies() map[string]string {
	c, _ := s.Get(domain.KeyCookies).(map[string]string)
	return c
}

func (s *Scope) QueryParams() url.Values {
	q, _ := s.Get(domain.KeyQueryParams).(url.Values)
	return q
}

func (s *Scope) PathParams() map[string]string {
	p, _ := s.Get(domain.KeyPathParams).(map[string]string)
	return p
}

// SendEvent returns the connection's event sender.
func (s *Scope) SendEvent() domain.SendEvent {
	fn, _ := s.Get(domain.KeySendEvent).(domain.SendEvent)
	return fn
}

// SendError returns the connection's error sender.
func (s *Scope) SendError() domain.SendError {
	fn, _ := s.Get(domain.KeySendError).(domain.SendError)
	return fn
}
