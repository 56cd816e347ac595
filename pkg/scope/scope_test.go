package scope_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBase(t *testing.T) *scope.Scope {
	t.Helper()
	meta := memory.Metadata{
		Header: http.Header{"Authorization": []string{"Bearer x"}},
		Cookie: map[string]string{"sid": "42"},
		Query:  url.Values{"room": []string{"lobby"}},
		Path:   map[string]string{"tenant": "acme"},
	}
	send := func(ctx context.Context, kind string, data any) error { return nil }
	fail := func(ctx context.Context, reason, code string) error { return nil }
	return scope.Build(meta, send, fail)
}

func TestBuild_RequiredKeys(t *testing.T) {
	s := newBase(t)

	for _, key := range []string{
		domain.KeyHeaders, domain.KeyCookies, domain.KeyQueryParams,
		domain.KeyPathParams, domain.KeySendEvent, domain.KeySendError,
	} {
		_, ok := s.Lookup(key)
		assert.True(t, ok, "missing %s", key)
	}

	assert.Equal(t, "Bearer x", s.Headers().Get("Authorization"))
	assert.Equal(t, "42", s.Cookies()["sid"])
	assert.Equal(t, "lobby", s.QueryParams().Get("room"))
	assert.Equal(t, "acme", s.PathParams()["tenant"])
	assert.NotNil(t, s.SendEvent())
	assert.NotNil(t, s.SendError())
}

func TestOverlay_ReadsLocalWritesShared(t *testing.T) {
	base := newBase(t)
	req := base.Overlay(map[string]any{domain.KeyRequestData: "payload"})

	assert.Equal(t, "payload", req.Get(domain.KeyRequestData))
	_, visible := base.Lookup(domain.KeyRequestData)
	assert.False(t, visible, "request-local keys must not leak into the connection scope")

	req.Set("user", "ana")
	assert.Equal(t, "ana", base.Get("user"))
	assert.Same(t, base, req.Root())

	nested := req.Overlay(map[string]any{"extra": 1})
	assert.Equal(t, "payload", nested.Get(domain.KeyRequestData))
	assert.Equal(t, 1, nested.Get("extra"))
}

func TestScope_SetDefault(t *testing.T) {
	s := scope.New()
	assert.Equal(t, 1, s.SetDefault("n", 1))
	assert.Equal(t, 1, s.SetDefault("n", 2))
}

func TestScope_ConcurrentMutation(t *testing.T) {
	base := newBase(t)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view := base.Overlay(map[string]any{domain.KeyRequestID: i})
			view.Set("last", i)
			_ = view.Snapshot()
		}(i)
	}
	wg.Wait()

	_, ok := base.Lookup("last")
	require.True(t, ok)
	assert.Equal(t, 7, base.Len())
}
