package invoke_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/invoke"
	"github.com/aretw0/tether/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct{ open bool }

func newInvoker(t *testing.T, events *[]string) *invoke.Invoker {
	t.Helper()
	var mu sync.Mutex
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
	}
	c := inject.NewContainer()
	c.MustProvide(func() (*resource, func(), error) {
		record("acquire")
		r := &resource{open: true}
		return r, func() {
			r.open = false
			record("release")
		}, nil
	})
	return invoke.New(c)
}

func TestInvokeScoped_OneShotReleasesImmediately(t *testing.T) {
	var events []string
	iv := newInvoker(t, &events)

	sig := inject.MustScan(func(r *resource) (string, error) {
		events = append(events, "handler")
		return "done", nil
	})

	value, release, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, []string{"acquire", "handler", "release"}, events)
	assert.NoError(t, release(context.Background()))
}

func TestInvokeScoped_TwoPhaseContinuesAfterDelivery(t *testing.T) {
	var events []string
	iv := newInvoker(t, &events)

	sig := inject.MustScan(func(r *resource) (string, inject.Continuation, error) {
		events = append(events, "yield")
		return "value", func(ctx context.Context) error {
			assert.True(t, r.open, "resource must stay open until the continuation ends")
			events = append(events, "continue")
			return nil
		}, nil
	})

	value, release, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.Equal(t, []string{"acquire", "yield"}, events, "nothing runs past the yield before release")

	events = append(events, "deliver")
	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()))

	assert.Equal(t, []string{"acquire", "yield", "deliver", "continue", "release"}, events)
}

func TestInvokeScoped_ReleaseExactlyOnceUnderConcurrency(t *testing.T) {
	iv := invoke.New(inject.NewContainer())
	var continued atomic.Int32

	sig := inject.MustScan(func() (int, inject.Continuation, error) {
		return 1, func(context.Context) error {
			continued.Add(1)
			return nil
		}, nil
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := iv.InvokeScoped(context.Background(), sig, scope.New())
			assert.NoError(t, err)

			var inner sync.WaitGroup
			for range 5 {
				inner.Add(1)
				go func() {
					defer inner.Done()
					_ = release(context.Background())
				}()
			}
			inner.Wait()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), continued.Load())
}

func TestInvokeScoped_ErrorBeforeYield(t *testing.T) {
	var events []string
	iv := newInvoker(t, &events)
	boom := errors.New("boom")
	continued := false

	sig := inject.MustScan(func(r *resource) (string, inject.Continuation, error) {
		return "", func(context.Context) error {
			continued = true
			return nil
		}, boom
	})

	_, release, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	assert.Same(t, boom, err, "errors before the yield propagate unchanged")
	assert.Equal(t, []string{"acquire", "release"}, events, "resources are released on the error path")
	assert.NoError(t, release(context.Background()))
	assert.False(t, continued)
}

func TestInvokeScoped_RecoverableErrorPropagates(t *testing.T) {
	iv := invoke.New(inject.NewContainer())
	sig := inject.MustScan(func() (any, error) {
		return nil, domain.NewRequestError("bad", "E1")
	})

	_, _, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	assert.Equal(t, domain.ClassRecoverable, domain.Classify(err))
}

func TestInvokeScoped_PanicBecomesFault(t *testing.T) {
	var events []string
	iv := newInvoker(t, &events)

	sig := inject.MustScan(func(r *resource) string {
		panic("nil pointer somewhere")
	})

	_, _, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	var fault *domain.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "nil pointer somewhere", fault.Panic)
	assert.Equal(t, []string{"acquire", "release"}, events)
}

func TestInvokeScoped_ContinuationFaultKeepsValue(t *testing.T) {
	var events []string
	iv := newInvoker(t, &events)

	sig := inject.MustScan(func(r *resource) (map[string]int, inject.Continuation, error) {
		v := map[string]int{"n": 1}
		return v, func(context.Context) error {
			panic("commit failed")
		}, nil
	})

	value, release, err := iv.InvokeScoped(context.Background(), sig, scope.New())
	require.NoError(t, err)

	rerr := release(context.Background())
	var fault *domain.Fault
	require.ErrorAs(t, rerr, &fault)
	assert.Equal(t, "continuation", fault.Op)
	assert.Equal(t, map[string]int{"n": 1}, value)
	assert.Equal(t, []string{"acquire", "release"}, events, "cleanup still runs after a failing continuation")
}

func TestInvoke_RunsContinuationBeforeReturning(t *testing.T) {
	iv := invoke.New(inject.NewContainer())
	s := scope.New()

	sig := inject.MustScan(func(sc *scope.Scope) (string, inject.Continuation, error) {
		return "bye", func(context.Context) error {
			sc.Set("finalized", true)
			return nil
		}, nil
	})

	value, err := iv.Invoke(context.Background(), sig, s)
	require.NoError(t, err)
	assert.Equal(t, "bye", value)
	assert.Equal(t, true, s.Get("finalized"))
}

func TestInvoke_ReportsContinuationError(t *testing.T) {
	iv := invoke.New(inject.NewContainer())
	cause := errors.New("flush")
	sig := inject.MustScan(func() (int, inject.Continuation, error) {
		return 7, func(context.Context) error { return cause }, nil
	})

	value, err := iv.Invoke(context.Background(), sig, scope.New())
	assert.Equal(t, 7, value)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, domain.ClassFault, domain.Classify(err))
}
