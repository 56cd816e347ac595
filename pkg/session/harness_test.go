package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/invoke"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/registry"
	"github.com/aretw0/tether/pkg/session"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type frame map[string]any

type harness struct {
	t       *testing.T
	tr      *memory.Transport
	manager *session.Manager
	done    chan error
}

func start(t *testing.T, reg *registry.Registry, opts ...session.Option) *harness {
	t.Helper()
	return startWith(t, reg, inject.NewContainer(), memory.NewTransport(memory.WithMetadata(memory.Metadata{
		Header: http.Header{"X-User": []string{"ana"}},
		Addr:   "10.0.0.1:4242",
	})), opts...)
}

func startWith(t *testing.T, reg *registry.Registry, c *inject.Container, tr *memory.Transport, opts ...session.Option) *harness {
	t.Helper()
	return startOn(t, reg, c, tr, tr, opts...)
}

// startOn serves conn while the test plays the peer through tr. conn usually
// wraps tr.
func startOn(t *testing.T, reg *registry.Registry, c *inject.Container, tr *memory.Transport, conn ports.Transport, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		tr:      tr,
		manager: session.NewManager(reg, invoke.New(c), opts...),
		done:    make(chan error, 1),
	}
	go func() {
		h.done <- h.manager.Serve(context.Background(), conn)
	}()
	t.Cleanup(func() {
		tr.Disconnect()
	})
	return h
}

// gatedTransport holds back response frames until release is called.
type gatedTransport struct {
	*memory.Transport
	held     chan struct{}
	gate     chan struct{}
	heldOnce sync.Once
	gateOnce sync.Once
}

func newGatedTransport(t *testing.T, tr *memory.Transport) *gatedTransport {
	g := &gatedTransport{Transport: tr, held: make(chan struct{}), gate: make(chan struct{})}
	t.Cleanup(g.release)
	return g
}

func (g *gatedTransport) Send(ctx context.Context, frame []byte) error {
	if bytes.Contains(frame, []byte(`"type":"response"`)) {
		g.heldOnce.Do(func() { close(g.held) })
		<-g.gate
	}
	return g.Transport.Send(ctx, frame)
}

func (g *gatedTransport) release() {
	g.gateOnce.Do(func() { close(g.gate) })
}

func (h *harness) send(raw string) {
	h.tr.Push([]byte(raw))
}

func (h *harness) request(id, endpoint string, data any) {
	h.t.Helper()
	require.NoError(h.t, h.tr.PushJSON(map[string]any{
		"id":       id,
		"type":     "request",
		"endpoint": endpoint,
		"data":     data,
	}))
}

func (h *harness) next() frame {
	h.t.Helper()
	select {
	case raw, ok := <-h.tr.Outbound():
		require.True(h.t, ok, "transport closed while waiting for a frame")
		var f frame
		require.NoError(h.t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// close disconnects the peer, waits for teardown, and returns every frame
// sent after the last next().
func (h *harness) close() []frame {
	h.t.Helper()
	h.tr.Disconnect()
	select {
	case err := <-h.done:
		require.NoError(h.t, err)
	case <-time.After(waitTimeout):
		h.t.Fatal("session did not close")
	}

	var rest []frame
	for raw := range h.tr.Outbound() {
		var f frame
		require.NoError(h.t, json.Unmarshal(raw, &f))
		rest = append(rest, f)
	}
	return rest
}

func errorEvent(code string) frame {
	reasons := map[string]string{
		"validation-error": "Invalid request sent",
		"invalid-endpoint": "Invalid endpoint",
		"internal-error":   "Internal server error",
	}
	return frame{
		"type": "event",
		"kind": "error",
		"data": map[string]any{"reason": reasons[code], "code": code},
	}
}
