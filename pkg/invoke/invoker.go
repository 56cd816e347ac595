// Package invoke runs handlers with resource-scoped release.
//
// A one-shot handler returns its final value and its resources are released
// before InvokeScoped returns. A two-phase handler yields a value plus a
// continuation; the caller delivers the value and then calls Release, which
// runs the continuation and unwinds the resource stack exactly once.
package invoke

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/scope"
)

// Resolver binds handler parameters from a scope. inject.Container is the
// default implementation.
type Resolver interface {
	Resolve(ctx context.Context, sig *inject.Signature, s *scope.Scope, stack *inject.Stack) ([]reflect.Value, error)
}

// Release finishes a scoped invocation. It is safe to call more than once and
// from several goroutines; only the first call does any work and reports a
// fault (a *domain.Fault) if the continuation or a cleanup failed.
type Release func(ctx context.Context) error

// Invoker runs handlers through a Resolver.
type Invoker struct {
	resolver Resolver
	logger   *slog.Logger
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(iv *Invoker) {
		iv.logger = logger
	}
}

// New creates an Invoker.
func New(resolver Resolver, opts ...Option) *Invoker {
	iv := &Invoker{
		resolver: resolver,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// Invoke resolves, calls, and releases in one go. For a two-phase handler the
// continuation runs right after the handler returns. A release fault is
// returned alongside the value.
func (iv *Invoker) Invoke(ctx context.Context, sig *inject.Signature, s *scope.Scope) (any, error) {
	value, release, err := iv.InvokeScoped(ctx, sig, s)
	if err != nil {
		return nil, err
	}
	return value, release(ctx)
}

// InvokeScoped resolves and calls the handler. Errors raised during
// resolution or by the handler itself are returned unchanged, after the
// resources opened so far have been released; panics become *domain.Fault.
func (iv *Invoker) InvokeScoped(ctx context.Context, sig *inject.Signature, s *scope.Scope) (any, Release, error) {
	stack := inject.NewStack()

	value, next, err := iv.call(ctx, sig, s, stack)
	if err != nil {
		if cerr := stack.Close(); cerr != nil {
			iv.logger.WarnContext(ctx, "release after failed invocation failed",
				"handler", sig.Name,
				"err", cerr,
			)
		}
		return nil, noRelease, err
	}

	if sig.Mode == inject.OneShot {
		cerr := stack.Close()
		return value, once(func(context.Context) error {
			if cerr != nil {
				return domain.NewFault("release", cerr)
			}
			return nil
		}), nil
	}

	return value, once(func(ctx context.Context) error {
		var errs []error
		if next != nil {
			if err := runContinuation(ctx, next); err != nil {
				errs = append(errs, err)
			}
		}
		if cerr := stack.Close(); cerr != nil {
			errs = append(errs, domain.NewFault("release", cerr))
		}
		switch len(errs) {
		case 0:
			return nil
		case 1:
			return errs[0]
		}
		return domain.NewFault("release", errors.Join(errs...))
	}), nil
}

func (iv *Invoker) call(ctx context.Context, sig *inject.Signature, s *scope.Scope, stack *inject.Stack) (value any, next inject.Continuation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewPanicFault("handler", r)
		}
	}()

	args, err := iv.resolver.Resolve(ctx, sig, s, stack)
	if err != nil {
		return nil, nil, err
	}
	iv.logger.DebugContext(ctx, "invoking handler", "handler", sig.Name, "mode", sig.Mode)
	return sig.Call(args)
}

func runContinuation(ctx context.Context, next inject.Continuation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewPanicFault("continuation", r)
		}
	}()
	if err := next(ctx); err != nil {
		return domain.NewFault("continuation", err)
	}
	return nil
}

func once(fn func(context.Context) error) Release {
	var o sync.Once
	return func(ctx context.Context) error {
		var err error
		o.Do(func() {
			err = fn(ctx)
		})
		return err
	}
}

func noRelease(context.Context) error { return nil }
