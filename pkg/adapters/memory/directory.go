package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/tether/pkg/domain"
)

// Directory implements ports.SessionDirectory in memory.
// Safe for concurrent use.
type Directory struct {
	data map[string]domain.Peer
	mu   sync.RWMutex
}

// NewDirectory creates a new in-memory session directory.
func NewDirectory() *Directory {
	return &Directory{
		data: make(map[string]domain.Peer),
	}
}

// Register records the peer.
func (d *Directory) Register(ctx context.Context, peer domain.Peer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[peer.ID] = peer
	return nil
}

// Unregister removes the peer.
func (d *Directory) Unregister(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, sessionID)
	return nil
}

// Get returns a single peer.
func (d *Directory) Get(ctx context.Context, sessionID string) (domain.Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peer, ok := d.data[sessionID]
	if !ok {
		return domain.Peer{}, domain.ErrSessionNotFound
	}
	return peer, nil
}

// List returns live peers ordered by connection time.
func (d *Directory) List(ctx context.Context) ([]domain.Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peers := make([]domain.Peer, 0, len(d.data))
	for _, p := range d.data {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ConnectedAt.Before(peers[j].ConnectedAt)
	})
	return peers, nil
}
