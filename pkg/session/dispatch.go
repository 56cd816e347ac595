package session

import (
	"context"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/protocol"
	"github.com/aretw0/tether/pkg/registry"
)

// dispatch routes one decoded request. It never waits for the handler.
func (s *Session) dispatch(req protocol.Request) {
	entry, ok := s.m.registry.LookupEndpoint(req.Endpoint)
	if !ok {
		s.logger.Debug("unknown endpoint", "endpoint", req.Endpoint, "request_id", req.ID)
		if err := s.write(s.ctx, protocol.EncodePayloadEvent(domain.InvalidEndpointPayload)); err != nil {
			s.fault(s.ctx, asFault("send", err))
		}
		s.report(s.ctx, req, domain.OutcomeUnknownEndpoint, 0)
		return
	}

	s.inflight.Add(1)
	s.m.wg.Add(1)
	go func() {
		defer s.m.wg.Done()
		defer s.inflight.Done()
		s.handle(entry, req)
	}()
}

// handle runs one endpoint and sends exactly one correlated reply, unless the
// handler faulted (then the peer gets an internal-error event).
func (s *Session) handle(entry *registry.Entry, req protocol.Request) {
	ctx := s.ctx
	start := time.Now()
	attrs := []any{"endpoint", req.Endpoint, "request_id", req.ID}

	defer func() {
		if r := recover(); r != nil {
			s.fault(ctx, domain.NewPanicFault("endpoint", r), attrs...)
			s.report(ctx, req, domain.OutcomeFault, time.Since(start))
		}
	}()

	if s.m.hooks.OnRequest != nil {
		s.m.hooks.OnRequest(ctx, &domain.RequestEvent{
			EventBase: s.base(domain.EventRequest),
			RequestID: req.ID,
			Endpoint:  req.Endpoint,
		})
	}

	view := s.scope.Overlay(map[string]any{
		domain.KeyRequestData: req.Data,
		domain.KeyRequestID:   req.ID,
		domain.KeyTransport:   s.transport,
	})

	value, release, err := s.m.invoker.InvokeScoped(ctx, entry.Signature, view)
	if err != nil {
		if domain.Classify(err) == domain.ClassRecoverable {
			if werr := s.write(ctx, protocol.EncodeErrorResponse(req.ID, domain.PayloadOf(err))); werr != nil {
				s.fault(ctx, asFault("send", werr), attrs...)
			}
			s.report(ctx, req, domain.OutcomeRecoverable, time.Since(start))
			return
		}
		s.fault(ctx, asFault("endpoint", err), attrs...)
		s.report(ctx, req, domain.OutcomeFault, time.Since(start))
		return
	}

	id, tracked := s.open.add(release)
	defer func() {
		if err := release(ctx); err != nil {
			s.fault(ctx, asFault("continuation", err), attrs...)
		}
		if tracked {
			s.open.remove(id)
		}
	}()

	if err := s.write(ctx, protocol.EncodeResponse(req.ID, value)); err != nil {
		s.fault(ctx, asFault("send", err), attrs...)
		s.report(ctx, req, domain.OutcomeFault, time.Since(start))
		return
	}
	s.report(ctx, req, domain.OutcomeOK, time.Since(start))
}

func (s *Session) report(ctx context.Context, req protocol.Request, outcome string, d time.Duration) {
	if s.m.hooks.OnResponse == nil {
		return
	}
	s.m.hooks.OnResponse(ctx, &domain.RequestEvent{
		EventBase: s.base(domain.EventResponse),
		RequestID: req.ID,
		Endpoint:  req.Endpoint,
		Outcome:   outcome,
		Duration:  d,
	})
}
