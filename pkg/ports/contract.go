package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDirectoryContract runs a suite of tests to verify that a SessionDirectory
// implementation adheres to the defined interface contract.
func RunDirectoryContract(t *testing.T, dir SessionDirectory) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	peer := func(id string) domain.Peer {
		return domain.Peer{
			ID:          id,
			Path:        "/ws",
			RemoteAddr:  "127.0.0.1:5000",
			ConnectedAt: time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("Register and Get", func(t *testing.T) {
		p := peer(sessionID)
		require.NoError(t, dir.Register(ctx, p), "Register should not return error")

		loaded, err := dir.Get(ctx, sessionID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, p.ID, loaded.ID)
		assert.Equal(t, p.Path, loaded.Path)
		assert.Equal(t, p.RemoteAddr, loaded.RemoteAddr)
		assert.True(t, p.ConnectedAt.Equal(loaded.ConnectedAt))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := dir.Get(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Unregister", func(t *testing.T) {
		require.NoError(t, dir.Register(ctx, peer(sessionID)))
		require.NoError(t, dir.Unregister(ctx, sessionID), "Unregister should not return error")

		_, err := dir.Get(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Unregister should return ErrSessionNotFound")

		assert.NoError(t, dir.Unregister(ctx, sessionID), "Unregister of unknown ID is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = dir.Register(ctx, peer(id1))
		_ = dir.Register(ctx, peer(id2))
		defer func() {
			_ = dir.Unregister(ctx, id1)
			_ = dir.Unregister(ctx, id2)
		}()

		peers, err := dir.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(peers))
		for _, p := range peers {
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
