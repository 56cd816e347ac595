package memory

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// DefaultBufferSize is the number of frames buffered in each direction.
const DefaultBufferSize = 256

var errReceiveConsumed = errors.New("memory transport: receive sequence already consumed")

// Transport is an in-process ports.Transport. The test (or host) plays the
// peer: Push feeds inbound frames, Outbound yields what the engine sent, and
// Disconnect ends the inbound stream.
type Transport struct {
	meta     Metadata
	inbound  chan []byte
	outbound chan []byte

	mu        sync.Mutex
	acceptErr error
	sendErr   error
	closed    bool

	disconnectOnce sync.Once
	consumed       atomic.Bool
}

// Option configures the Transport.
type Option func(*Transport)

// WithMetadata sets the handshake metadata.
func WithMetadata(meta Metadata) Option {
	return func(t *Transport) {
		t.meta = meta
	}
}

// WithRejectHandshake makes Accept fail with err.
func WithRejectHandshake(err error) Option {
	return func(t *Transport) {
		t.acceptErr = err
	}
}

// NewTransport creates an in-memory transport.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		inbound:  make(chan []byte, DefaultBufferSize),
		outbound: make(chan []byte, DefaultBufferSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ ports.Transport = (*Transport)(nil)

func (t *Transport) Accept(ctx context.Context) error {
	return t.acceptErr
}

// Receive yields pushed frames until Disconnect is called or ctx is done.
func (t *Transport) Receive(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !t.consumed.CompareAndSwap(false, true) {
			yield(nil, errReceiveConsumed)
			return
		}
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case frame, ok := <-t.inbound:
				if !ok {
					yield(nil, domain.ErrDisconnected)
					return
				}
				if !yield(frame, nil) {
					return
				}
			}
		}
	}
}

func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrDisconnected
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	select {
	case t.outbound <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Metadata() ports.Metadata {
	return t.meta
}

// Close stops accepting outbound frames. Already sent frames remain readable.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.outbound)
	}
	return nil
}

// Push feeds a raw inbound frame.
func (t *Transport) Push(frame []byte) {
	t.inbound <- frame
}

// PushJSON encodes v and feeds it as an inbound frame.
func (t *Transport) PushJSON(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.Push(frame)
	return nil
}

// Disconnect ends the inbound stream, as if the peer hung up.
func (t *Transport) Disconnect() {
	t.disconnectOnce.Do(func() {
		close(t.inbound)
	})
}

// FailSends makes every following Send return err. Pass nil to recover.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Outbound returns the frames sent by the engine. It is closed by Close.
func (t *Transport) Outbound() <-chan []byte {
	return t.outbound
}
