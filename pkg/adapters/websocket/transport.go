// Package websocket adapts gorilla/websocket connections to ports.Transport.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	// DefaultReadLimit caps the size of a single inbound frame.
	DefaultReadLimit = 1 << 20
	// DefaultWriteTimeout bounds a single outbound write.
	DefaultWriteTimeout = 10 * time.Second
)

// Transport is a server-side WebSocket connection created from an HTTP
// upgrade request. Accept performs the upgrade.
type Transport struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader websocket.Upgrader
	meta     metadata

	readLimit    int64
	writeTimeout time.Duration

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ ports.Transport = (*Transport)(nil)

// Option configures the Transport.
type Option func(*Transport)

// WithReadLimit sets the maximum inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(t *Transport) {
		t.readLimit = n
	}
}

// WithWriteTimeout sets the deadline applied to each outbound frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.writeTimeout = d
	}
}

// WithCheckOrigin overrides the upgrader's same-origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(t *Transport) {
		t.upgrader.CheckOrigin = check
	}
}

// WithBufferSizes sets the upgrader's I/O buffer sizes.
func WithBufferSizes(read, write int) Option {
	return func(t *Transport) {
		t.upgrader.ReadBufferSize = read
		t.upgrader.WriteBufferSize = write
	}
}

// New wraps an upgrade request. Metadata is captured immediately, so it is
// available even if the handshake fails.
func New(w http.ResponseWriter, r *http.Request, opts ...Option) *Transport {
	t := &Transport{
		w:            w,
		r:            r,
		meta:         metadataFrom(r),
		readLimit:    DefaultReadLimit,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Accept upgrades the HTTP connection. On failure the upgrader has already
// replied to the client with an HTTP error.
func (t *Transport) Accept(ctx context.Context) error {
	conn, err := t.upgrader.Upgrade(t.w, t.r, nil)
	if err != nil {
		return err
	}
	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}
	t.conn = conn
	return nil
}

// Receive yields inbound message payloads until the peer goes away or ctx
// is done. The terminal error wraps domain.ErrDisconnected for closes.
func (t *Transport) Receive(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if t.conn == nil {
			yield(nil, domain.ErrDisconnected)
			return
		}
		stop := context.AfterFunc(ctx, func() {
			_ = t.conn.Close()
		})
		defer stop()

		for {
			_, frame, err := t.conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				yield(nil, classify(err))
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// Send writes one text frame. Concurrent calls are serialized.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if t.conn == nil {
		return domain.ErrDisconnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return classify(err)
	}
	return nil
}

func (t *Transport) Metadata() ports.Metadata {
	return t.meta
}

// Close sends a normal closure frame and closes the connection.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// classify maps connection errors onto the domain taxonomy.
func classify(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) || isClosedConn(err) {
		return fmt.Errorf("%w: %v", domain.ErrDisconnected, err)
	}
	return err
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}

type metadata struct {
	headers http.Header
	cookies map[string]string
	query   url.Values
	path    map[string]string
	addr    string
}

func metadataFrom(r *http.Request) metadata {
	m := metadata{
		headers: r.Header.Clone(),
		cookies: make(map[string]string),
		query:   r.URL.Query(),
		path:    make(map[string]string),
		addr:    r.RemoteAddr,
	}
	if m.headers == nil {
		m.headers = http.Header{}
	}
	for _, c := range r.Cookies() {
		m.cookies[c.Name] = c.Value
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			m.path[key] = rctx.URLParams.Values[i]
		}
	}
	return m
}

func (m metadata) Headers() http.Header { return m.headers }
func (m metadata) Cookies() map[string]string { return m.cookies }
func (m metadata) QueryParams() url.Values { return m.query }
func (m metadata) PathParams() map[string]string { return m.path }
func (m metadata) RemoteAddr() string { return m.addr }
