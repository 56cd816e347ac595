package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventRequest    EventType = "request"
	EventResponse   EventType = "response"
	EventFault      EventType = "fault"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// SessionEvent is emitted when a session opens or closes.
type SessionEvent struct {
	EventBase
	Path       string        `json:"path"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Request outcomes reported in RequestEvent.
const (
	OutcomeOK              = "ok"
	OutcomeRecoverable     = "recoverable"
	OutcomeFault           = "fault"
	OutcomeUnknownEndpoint = "unknown_endpoint"
)

// RequestEvent is emitted around each dispatched request.
type RequestEvent struct {
	EventBase
	RequestID string        `json:"request_id"`
	Endpoint  string        `json:"endpoint"`
	Outcome   string        `json:"outcome,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// FaultEvent is emitted for every fault caught at a unit-of-work boundary.
type FaultEvent struct {
	EventBase
	Op  string `json:"op"`
	Err error  `json:"-"`
}

// LifecycleHooks defines callbacks for session observability.
// Every hook is optional and must not block.
type LifecycleHooks struct {
	OnConnect    func(context.Context, *SessionEvent)
	OnDisconnect func(context.Context, *SessionEvent)
	OnRequest    func(context.Context, *RequestEvent)
	OnResponse   func(context.Context, *RequestEvent)
	OnFault      func(context.Context, *FaultEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnConnect:    chain(h.OnConnect, other.OnConnect),
		OnDisconnect: chain(h.OnDisconnect, other.OnDisconnect),
		OnRequest:    chain(h.OnRequest, other.OnRequest),
		OnResponse:   chain(h.OnResponse, other.OnResponse),
		OnFault:      chain(h.OnFault, other.OnFault),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// SendEvent pushes an unsolicited event to the peer.
type SendEvent func(ctx context.Context, kind string, data any) error

// SendError pushes an uncorrelated error event to the peer.
type SendError func(ctx context.Context, reason, code string) error

// Peer describes a live session in a session directory.
type Peer struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
