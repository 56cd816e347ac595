package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/protocol"
	"github.com/aretw0/tether/pkg/scope"
	"github.com/google/uuid"
)

// Session is the server-side state of one open connection.
type Session struct {
	id          string
	m           *Manager
	transport   ports.Transport
	logger      *slog.Logger
	connectedAt time.Time

	state atomic.Int32
	scope *scope.Scope
	open  *releaseSet

	// ctx is handed to handlers. It is detached from the connection context
	// unless the manager cancels handlers on disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup

	stopRefresh chan struct{}
	refreshDone chan struct{}
}

func newSession(m *Manager, tr ports.Transport) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		m:         m,
		transport: tr,
		logger:    m.logger.With("session_id", id),
		open:      newReleaseSet(),
	}
}

// ID returns the server-assigned session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Scope returns the connection scope. It is nil before the handshake completes.
func (s *Session) Scope() *scope.Scope {
	return s.scope
}

// ConnectedAt returns when the handshake completed.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Wait blocks until every request dispatched by this session has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("session state changed", "state", st)
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateConnecting)
	if err := s.transport.Accept(ctx); err != nil {
		s.setState(StateClosed)
		_ = s.transport.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}
	defer s.transport.Close()

	s.m.wg.Add(1)
	defer s.m.wg.Done()

	s.ctx, s.cancel = context.WithoutCancel(ctx), func() {}
	if s.m.cancelOnDisconnect {
		s.ctx, s.cancel = context.WithCancel(ctx)
		defer s.cancel()
	}

	s.connectedAt = time.Now()
	s.scope = scope.Build(s.transport.Metadata(), s.sendEvent, s.sendError)
	s.scope.Set(domain.KeySessionID, s.id)
	s.scope.Set(domain.KeyContext, s.scope)

	s.m.attach(s)
	s.logger.Debug("session connected",
		"remote_addr", s.transport.Metadata().RemoteAddr(),
		"headers", s.scope.Headers(),
	)
	s.advertise(ctx)
	if s.m.hooks.OnConnect != nil {
		s.m.hooks.OnConnect(ctx, s.sessionEvent(domain.EventConnect))
	}

	s.enter()
	s.setState(StateActive)
	s.readLoop(ctx)
	s.drain()
	s.setState(StateClosed)

	s.m.detach(s)
	s.withdraw()
	if s.m.hooks.OnDisconnect != nil {
		s.m.hooks.OnDisconnect(ctx, s.sessionEvent(domain.EventDisconnect))
	}
	return nil
}

// enter runs the entry handler, sends its value as the init event and then
// runs its continuation. If init cannot be delivered the release stays open
// and teardown forces it.
func (s *Session) enter() {
	entry := s.m.registry.Entry()
	if entry == nil {
		return
	}

	view := s.scope.Overlay(map[string]any{domain.KeyTransport: s.transport})
	value, release, err := s.m.invoker.InvokeScoped(s.ctx, entry.Signature, view)
	if err != nil {
		// A recoverable error has no request to correlate to here.
		s.fault(s.ctx, asFault("entry", err))
		return
	}
	id, tracked := s.open.add(release)

	if err := s.write(s.ctx, protocol.EncodeEvent(domain.EventInit, value)); err != nil {
		s.fault(s.ctx, asFault("send", err))
		if !tracked {
			s.forceRelease(s.ctx, release)
		}
		return
	}

	if err := release(s.ctx); err != nil {
		s.fault(s.ctx, asFault("continuation", err))
	}
	if tracked {
		s.open.remove(id)
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for frame, err := range s.transport.Receive(ctx) {
		if err != nil {
			if !isDisconnect(err) {
				s.logger.Warn("receive failed, closing session", "err", err)
			}
			return
		}

		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			s.logger.Debug("rejected frame", "err", err)
			if err := s.write(s.ctx, protocol.EncodePayloadEvent(domain.InvalidRequestPayload)); err != nil {
				s.fault(s.ctx, asFault("send", err))
			}
			continue
		}

		s.dispatch(req)
	}
}

// drain runs the exit handler and forces every still-open release.
func (s *Session) drain() {
	s.setState(StateDraining)
	if s.m.cancelOnDisconnect {
		s.cancel()
	}
	ctx := context.WithoutCancel(s.ctx)

	if exit := s.m.registry.Exit(); exit != nil {
		view := s.scope.Overlay(map[string]any{domain.KeyTransport: s.transport})
		if _, err := s.m.invoker.Invoke(ctx, exit.Signature, view); err != nil {
			s.fault(ctx, asFault("exit", err))
		}
	}

	for _, release := range s.open.drain() {
		s.forceRelease(ctx, release)
	}
}

func (s *Session) forceRelease(ctx context.Context, release func(context.Context) error) {
	if err := release(ctx); err != nil {
		s.fault(ctx, asFault("release", err))
	}
}

// write encodes and sends one envelope unless the session is closed.
func (s *Session) write(ctx context.Context, envelope any) error {
	if s.State() == StateClosed {
		return domain.ErrSessionClosed
	}
	frame, err := protocol.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, frame)
}

// sendEvent is the send_event capability handed to handlers. Failures go
// through the fault path and are never returned to the caller.
func (s *Session) sendEvent(ctx context.Context, kind string, data any) error {
	if err := s.write(ctx, protocol.EncodeEvent(kind, data)); err != nil {
		s.fault(ctx, asFault("send", err))
	}
	return nil
}

// sendError is the send_error capability handed to handlers.
func (s *Session) sendError(ctx context.Context, reason, code string) error {
	if err := s.write(ctx, protocol.EncodeErrorEvent(reason, code)); err != nil {
		s.fault(ctx, asFault("send", err))
	}
	return nil
}

// fault logs err and, while the session is active, tells the peer an
// internal error happened. Disconnects are not faults and are dropped.
func (s *Session) fault(ctx context.Context, err error, attrs ...any) {
	if isDisconnect(err) {
		s.logger.Debug("dropped send on a closed connection", append(attrs, "err", err)...)
		return
	}

	op := "unknown"
	var f *domain.Fault
	if errors.As(err, &f) {
		op = f.Op
	}
	s.logger.Error("fault", append(attrs, "op", op, "err", err)...)
	if s.m.hooks.OnFault != nil {
		s.m.hooks.OnFault(ctx, &domain.FaultEvent{
			EventBase: s.base(domain.EventFault),
			Op:        op,
			Err:       err,
		})
	}

	switch s.State() {
	case StateDraining, StateClosed:
		return
	}
	if werr := s.write(ctx, protocol.EncodePayloadEvent(domain.InternalErrorPayload)); werr != nil {
		s.logger.Debug("failed to report fault to peer", "err", werr)
	}
}

func (s *Session) peer() domain.Peer {
	return domain.Peer{
		ID:          s.id,
		Path:        s.m.path,
		RemoteAddr:  s.transport.Metadata().RemoteAddr(),
		ConnectedAt: s.connectedAt.UTC(),
	}
}

func (s *Session) advertise(ctx context.Context) {
	if s.m.directory == nil {
		return
	}
	if err := s.m.directory.Register(ctx, s.peer()); err != nil {
		s.logger.Warn("failed to register session in directory", "err", err)
	}
	if s.m.refresh <= 0 {
		return
	}

	refreshCtx := context.WithoutCancel(ctx)
	s.stopRefresh = make(chan struct{})
	s.refreshDone = make(chan struct{})
	go func() {
		defer close(s.refreshDone)
		ticker := time.NewTicker(s.m.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopRefresh:
				return
			case <-ticker.C:
				if err := s.m.directory.Register(refreshCtx, s.peer()); err != nil {
					s.logger.Warn("failed to refresh session in directory", "err", err)
				}
			}
		}
	}()
}

func (s *Session) withdraw() {
	if s.m.directory == nil {
		return
	}
	if s.stopRefresh != nil {
		close(s.stopRefresh)
		<-s.refreshDone
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()
	if err := s.m.directory.Unregister(ctx, s.id); err != nil {
		s.logger.Warn("failed to unregister session from directory", "err", err)
	}
}

func (s *Session) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: s.id}
}

func (s *Session) sessionEvent(t domain.EventType) *domain.SessionEvent {
	e := &domain.SessionEvent{
		EventBase:  s.base(t),
		Path:       s.m.path,
		RemoteAddr: s.transport.Metadata().RemoteAddr(),
	}
	if t == domain.EventDisconnect {
		e.Duration = time.Since(s.connectedAt)
	}
	return e
}

// asFault makes sure err is reported as a fault raised by op, even when it
// carries a recoverable payload. Faults the invoker raised from the handler
// body itself are attributed to op.
func asFault(op string, err error) error {
	if isDisconnect(err) {
		return err
	}
	var f *domain.Fault
	if errors.As(err, &f) {
		if f.Op == "handler" {
			return &domain.Fault{Op: op, Err: f.Err, Panic: f.Panic}
		}
		return err
	}
	return domain.NewFault(op, err)
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || domain.Classify(err) == domain.ClassDisconnect
}
