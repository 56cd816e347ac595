package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key written by the Directory.
const DefaultPrefix = "tether:session:"

// noExpiry is the index score used when entries never expire (2100-01-01).
const noExpiry = 4102444800

// Directory implements ports.SessionDirectory using Redis. Each peer is a JSON
// value with a TTL, indexed by a sorted set scored by expiry so List can prune
// entries left behind by replicas that died without unregistering.
type Directory struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ ports.SessionDirectory = (*Directory)(nil)

type Option func(*Directory)

// WithTTL sets how long an entry survives without being registered again.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		d.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(d *Directory) {
		d.prefix = prefix
	}
}

// New creates a Directory with its own client.
func New(address, password string, db int, opts ...Option) *Directory {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Directory from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Directory {
	d := &Directory{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TTL returns the configured entry lifetime. Zero means entries never expire.
func (d *Directory) TTL() time.Duration {
	return d.ttl
}

func (d *Directory) key(sessionID string) string {
	return d.prefix + sessionID
}

func (d *Directory) indexKey() string {
	return d.prefix + "index"
}

// Register stores the peer and refreshes its expiry.
func (d *Directory) Register(ctx context.Context, peer domain.Peer) error {
	data, err := json.Marshal(peer)
	if err != nil {
		return fmt.Errorf("failed to marshal peer: %w", err)
	}

	score := float64(time.Now().Add(d.ttl).Unix())
	if d.ttl == 0 {
		score = noExpiry
	}

	pipe := d.client.Pipeline()
	pipe.Set(ctx, d.key(peer.ID), data, d.ttl)
	pipe.ZAdd(ctx, d.indexKey(), backend.Z{Score: score, Member: peer.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register session in redis: %w", err)
	}
	return nil
}

// Unregister removes the peer. Unknown IDs are ignored.
func (d *Directory) Unregister(ctx context.Context, sessionID string) error {
	pipe := d.client.Pipeline()
	pipe.Del(ctx, d.key(sessionID))
	pipe.ZRem(ctx, d.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister session from redis: %w", err)
	}
	return nil
}

// Get loads a single peer.
func (d *Directory) Get(ctx context.Context, sessionID string) (domain.Peer, error) {
	val, err := d.client.Get(ctx, d.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Peer{}, domain.ErrSessionNotFound
		}
		return domain.Peer{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var peer domain.Peer
	if err := json.Unmarshal(val, &peer); err != nil {
		return domain.Peer{}, fmt.Errorf("failed to unmarshal peer: %w", err)
	}
	return peer, nil
}

// List prunes expired index entries and returns the remaining peers.
func (d *Directory) List(ctx context.Context) ([]domain.Peer, error) {
	now := float64(time.Now().Unix())
	if err := d.client.ZRemRangeByScore(ctx, d.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	ids, err := d.client.ZRange(ctx, d.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Peer{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.key(id)
	}
	vals, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	peers := make([]domain.Peer, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Value expired before its index entry was pruned.
			continue
		}
		var peer domain.Peer
		if err := json.Unmarshal([]byte(raw), &peer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal peer %s: %w", ids[i], err)
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

// Close closes the redis client.
func (d *Directory) Close() error {
	return d.client.Close()
}
