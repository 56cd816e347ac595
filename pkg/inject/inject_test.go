package inject_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(data string) *scope.Scope {
	meta := memory.Metadata{
		Header: http.Header{"Authorization": []string{"Bearer t0k"}},
		Cookie: map[string]string{"sid": "c1"},
		Query:  url.Values{"room": []string{"lobby"}},
		Path:   map[string]string{"tenant": "acme"},
	}
	base := scope.Build(meta,
		func(ctx context.Context, kind string, data any) error { return nil },
		func(ctx context.Context, reason, code string) error { return nil },
	)
	base.Set(domain.KeySessionID, "s-1")
	if data == "" {
		return base
	}
	return base.Overlay(map[string]any{
		domain.KeyRequestData: json.RawMessage(data),
		domain.KeyRequestID:   "r-1",
	})
}

func TestScan_Shapes(t *testing.T) {
	cases := []struct {
		name string
		fn   any
		mode inject.Mode
	}{
		{"no results", func() {}, inject.OneShot},
		{"error only", func() error { return nil }, inject.OneShot},
		{"value only", func() int { return 1 }, inject.OneShot},
		{"value and error", func() (int, error) { return 1, nil }, inject.OneShot},
		{"two-phase", func() (int, inject.Continuation, error) { return 1, nil, nil }, inject.TwoPhase},
		{"two-phase bare func", func() (int, func(context.Context) error, error) { return 1, nil, nil }, inject.TwoPhase},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := inject.Scan(tc.fn)
			require.NoError(t, err)
			assert.Equal(t, tc.mode, sig.Mode)
		})
	}
}

func TestScan_Rejects(t *testing.T) {
	cases := map[string]any{
		"not a function":    42,
		"nil function":      (func())(nil),
		"variadic":          func(xs ...int) {},
		"error not last":    func() (error, int) { return nil, 0 },
		"bare continuation": func() inject.Continuation { return nil },
		"four results":      func() (int, int, int, error) { return 0, 0, 0, nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := inject.Scan(fn)
			assert.Error(t, err)
		})
	}
}

func TestContainer_BuiltinParameters(t *testing.T) {
	c := inject.NewContainer()
	s := testScope(`{"x":1}`)

	var got struct {
		ctx     context.Context
		scope   *scope.Scope
		headers http.Header
		query   url.Values
		cookies inject.Cookies
		path    inject.PathParams
		data    inject.RequestData
		reqID   inject.RequestID
		sessID  inject.SessionID
		send    domain.SendEvent
		stack   *inject.Stack
	}
	sig := inject.MustScan(func(
		ctx context.Context, sc *scope.Scope, h http.Header, q url.Values,
		ck inject.Cookies, pp inject.PathParams, data inject.RequestData,
		id inject.RequestID, sid inject.SessionID, send domain.SendEvent, st *inject.Stack,
	) {
		got.ctx, got.scope, got.headers, got.query = ctx, sc, h, q
		got.cookies, got.path, got.data = ck, pp, data
		got.reqID, got.sessID, got.send, got.stack = id, sid, send, st
	})

	ctx := context.WithValue(context.Background(), struct{}{}, "marker")
	stack := inject.NewStack()
	args, err := c.Resolve(ctx, sig, s, stack)
	require.NoError(t, err)
	_, _, err = sig.Call(args)
	require.NoError(t, err)

	assert.Equal(t, "marker", got.ctx.Value(struct{}{}))
	assert.Same(t, s, got.scope)
	assert.Equal(t, "Bearer t0k", got.headers.Get("Authorization"))
	assert.Equal(t, "lobby", got.query.Get("room"))
	assert.Equal(t, "c1", got.cookies["sid"])
	assert.Equal(t, "acme", got.path["tenant"])
	assert.JSONEq(t, `{"x":1}`, string(got.data))
	assert.Equal(t, inject.RequestID("r-1"), got.reqID)
	assert.Equal(t, inject.SessionID("s-1"), got.sessID)
	assert.NotNil(t, got.send)
	assert.Same(t, stack, got.stack)
}

type counter struct{ n int }

func TestContainer_ProvidersAndCleanupOrder(t *testing.T) {
	c := inject.NewContainer()
	var order []string

	type db struct{ name string }
	type tx struct{ db *db }

	require.NoError(t, c.Provide(func() (*db, func(), error) {
		order = append(order, "open db")
		return &db{name: "main"}, func() { order = append(order, "close db") }, nil
	}))
	require.NoError(t, c.Provide(func(d *db) (*tx, func(), error) {
		order = append(order, "begin tx")
		return &tx{db: d}, func() { order = append(order, "end tx") }, nil
	}))
	calls := 0
	require.NoError(t, c.Provide(func() *counter {
		calls++
		return &counter{}
	}))

	sig := inject.MustScan(func(x *tx, a *counter, d *db) string { return x.db.name + d.name })

	stack := inject.NewStack()
	args, err := c.Resolve(context.Background(), sig, testScope(""), stack)
	require.NoError(t, err)
	v, _, err := sig.Call(args)
	require.NoError(t, err)
	assert.Equal(t, "mainmain", v)
	assert.Equal(t, 1, calls)

	require.NoError(t, stack.Close())
	assert.Equal(t, []string{"open db", "begin tx", "end tx", "close db"}, order)
}

func TestContainer_LaterProvideShadows(t *testing.T) {
	c := inject.NewContainer()
	c.MustProvide(func() string { return "first" })
	c.MustProvide(func() string { return "second" })

	sig := inject.MustScan(func(s string) string { return s })
	args, err := c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	require.NoError(t, err)
	v, _, _ := sig.Call(args)
	assert.Equal(t, "second", v)
}

type nodeA struct{}
type nodeB struct{}

func TestContainer_Cycle(t *testing.T) {
	c := inject.NewContainer()
	c.MustProvide(func(b *nodeB) *nodeA { return &nodeA{} })
	c.MustProvide(func(a *nodeA) *nodeB { return &nodeB{} })

	sig := inject.MustScan(func(a *nodeA) {})
	_, err := c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	assert.ErrorIs(t, err, inject.ErrUnresolvable)
}

func TestContainer_ProviderError(t *testing.T) {
	c := inject.NewContainer()
	boom := errors.New("pool exhausted")
	c.MustProvide(func() (*counter, error) { return nil, boom })

	sig := inject.MustScan(func(*counter) {})
	_, err := c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	assert.ErrorIs(t, err, boom)
}

func TestContainer_Unresolvable(t *testing.T) {
	c := inject.NewContainer()
	sig := inject.MustScan(func(ch chan int) {})
	_, err := c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	assert.ErrorIs(t, err, inject.ErrUnresolvable)
}

func TestProvide_Rejects(t *testing.T) {
	c := inject.NewContainer()
	assert.Error(t, c.Provide("nope"))
	assert.Error(t, c.Provide(func() {}))
	assert.Error(t, c.Provide(func() error { return nil }))
	assert.Error(t, c.Provide(func() (int, string) { return 0, "" }))
}

type greeting struct {
	Name  string `json:"name"`
	Times int    `json:"times"`
}

func (g greeting) Validate() error {
	if g.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestBind_DecodesRequestData(t *testing.T) {
	c := inject.NewContainer()
	sig := inject.MustScan(func(g greeting, p *greeting) (string, error) {
		if g != *p {
			return "", errors.New("mismatch")
		}
		return g.Name, nil
	})

	args, err := c.Resolve(context.Background(), sig, testScope(`{"name":"ana","times":3}`), inject.NewStack())
	require.NoError(t, err)
	v, _, err := sig.Call(args)
	require.NoError(t, err)
	assert.Equal(t, "ana", v)

	g, err := inject.Bind[greeting](testScope(`{"name":"bo","times":2}`))
	require.NoError(t, err)
	assert.Equal(t, greeting{Name: "bo", Times: 2}, g)
}

func TestBind_InvalidDataIsRecoverable(t *testing.T) {
	c := inject.NewContainer()
	sig := inject.MustScan(func(g greeting) {})

	for name, data := range map[string]string{
		"validation fails": `{"times":1}`,
		"wrong type":       `{"name":"ana","times":"many"}`,
		"null data":        `null`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Resolve(context.Background(), sig, testScope(data), inject.NewStack())
			require.Error(t, err)
			assert.Equal(t, domain.ClassRecoverable, domain.Classify(err))
			assert.Equal(t, domain.CodeValidation, domain.PayloadOf(err).Code)
		})
	}
}

func TestBind_WithoutRequestData(t *testing.T) {
	_, err := inject.Bind[greeting](testScope(""))
	assert.ErrorIs(t, err, inject.ErrUnresolvable)
}

type token string
type tenant string

func TestExtractors(t *testing.T) {
	c := inject.NewContainer()
	c.MustProvide(inject.FromHeader[token]("Authorization"))
	c.MustProvide(inject.FromPath[tenant]("tenant"))

	sig := inject.MustScan(func(tk token, tn tenant) string { return string(tk) + "@" + string(tn) })
	args, err := c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	require.NoError(t, err)
	v, _, _ := sig.Call(args)
	assert.Equal(t, "Bearer t0k@acme", v)

	type room string
	type missingCookie string
	c.MustProvide(inject.FromQuery[room]("room"))
	c.MustProvide(inject.FromCookie[missingCookie]("nope"))

	sig = inject.MustScan(func(r room) string { return string(r) })
	args, err = c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	require.NoError(t, err)
	v, _, _ = sig.Call(args)
	assert.Equal(t, "lobby", v)

	sig = inject.MustScan(func(missingCookie) {})
	_, err = c.Resolve(context.Background(), sig, testScope(""), inject.NewStack())
	assert.Equal(t, domain.ClassRecoverable, domain.Classify(err))
}
