package ports

import (
	"context"
	"iter"
	"net/http"
	"net/url"
)

// Metadata exposes what the peer sent during the handshake.
type Metadata interface {
	Headers() http.Header
	Cookies() map[string]string
	QueryParams() url.Values
	PathParams() map[string]string
	RemoteAddr() string
}

// Transport is a single framed, bidirectional connection.
//
// Receive yields raw JSON frames in arrival order until the peer disconnects,
// at which point it yields domain.ErrDisconnected (or io.EOF) once and stops.
// The sequence is not restartable. Send must be safe for concurrent use.
type Transport interface {
	// Accept completes the handshake. No other method may be called before it succeeds.
	Accept(ctx context.Context) error

	// Receive returns the lazy sequence of inbound frames.
	Receive(ctx context.Context) iter.Seq2[[]byte, error]

	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error

	// Metadata returns handshake metadata. Valid after Accept.
	Metadata() Metadata

	// Close releases the underlying connection. Idempotent.
	Close() error
}
