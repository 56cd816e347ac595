package ports

import (
	"context"

	"github.com/aretw0/tether/pkg/domain"
)

// SessionDirectory advertises live sessions so operators (and other replicas)
// can see who is connected.
type SessionDirectory interface {
	// Register records a live session. Registering the same ID again refreshes it.
	Register(ctx context.Context, peer domain.Peer) error

	// Unregister removes a session. Unknown IDs are not an error.
	Unregister(ctx context.Context, sessionID string) error

	// Get returns a single session or domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (domain.Peer, error)

	// List returns every live session.
	List(ctx context.Context) ([]domain.Peer, error)
}
