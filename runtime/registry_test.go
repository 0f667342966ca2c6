package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_Starts_Unauthenticated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given no connection is registered
	req.Zero(registry.Len())

	// When a connection registers
	id := registry.Register(nil, domain.Session{RemoteAddr: "10.0.0.1:5000"})

	// Then it is anonymous with an empty high-water mark
	session, ok := registry.Lookup(id)
	req.True(ok)
	req.Equal(id, session.ConnectionID)
	req.False(session.Identity.Authenticated())
	req.Zero(session.LastDelivered)
	req.Equal("10.0.0.1:5000", session.RemoteAddr)
	req.Equal(1, registry.Len())
}

func TestRegistry_Register_Resumes_From_Seed(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	id := registry.Register(nil, domain.Session{
		LastDelivered: 5,
		Identity:      domain.Identity{UserID: "ignored", Username: "ignored"},
	})

	session, _ := registry.Lookup(id)
	req.Equal(domain.MessageID(5), session.LastDelivered)
	// Identity always comes from a login, never from the seed
	req.False(session.Identity.Authenticated())
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := registry.Register(nil, domain.Session{})

	req.True(registry.Unregister(id))
	req.False(registry.Unregister(id))
	req.False(registry.Unregister("unknown"))
	req.Zero(registry.Len())
}

func TestRegistry_SetIdentity(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := registry.Register(nil, domain.Session{})
	alice := domain.Identity{UserID: "u-1", Username: "alice"}

	req.NoError(registry.SetIdentity(id, alice))
	session, _ := registry.Lookup(id)
	req.Equal(alice, session.Identity)

	// Re-login on the same connection replaces the identity
	bob := domain.Identity{UserID: "u-2", Username: "bob"}
	req.NoError(registry.SetIdentity(id, bob))
	session, _ = registry.Lookup(id)
	req.Equal(bob, session.Identity)

	req.ErrorIs(registry.SetIdentity("unknown", alice), errors.ErrUnknownConnection)
}

func TestRegistry_Advance_Never_Lowers_The_Mark(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := registry.Register(nil, domain.Session{})

	req.NoError(registry.Advance(id, 8))
	req.NoError(registry.Advance(id, 3))

	session, _ := registry.Lookup(id)
	req.Equal(domain.MessageID(8), session.LastDelivered)
	req.ErrorIs(registry.Advance("unknown", 1), errors.ErrUnknownConnection)
}

func TestRegistry_Snapshot_Is_A_Copy(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id1 := registry.Register(nil, domain.Session{})
	id2 := registry.Register(nil, domain.Session{})

	// Given a snapshot taken before changes
	snapshot := registry.Snapshot()
	req.Len(snapshot, 2)

	// When the registry changes
	registry.Unregister(id1)
	req.NoError(registry.Advance(id2, 4))

	// Then the snapshot is untouched
	req.Len(snapshot, 2)
	for _, s := range snapshot {
		req.Zero(s.LastDelivered)
	}
	req.Len(registry.Snapshot(), 1)
}

func TestRegistry_Concurrent_Mutations(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := registry.Register(nil, domain.Session{})
			_ = registry.Advance(id, 1)
			_ = registry.Snapshot()
			registry.Unregister(id)
		}()
	}
	wg.Wait()

	req.Zero(registry.Len())
}
