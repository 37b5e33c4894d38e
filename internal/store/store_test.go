package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
)

// testStoreContract exercises the accessor contract every backend must
// satisfy. Backend-specific tests call it with a fresh store.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	sub := json.RawMessage(`{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"k1","auth":"a1"}}`)

	t.Run("get unknown user", func(t *testing.T) {
		_, err := s.GetUser(ctx, "nobody@x.com")
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("subscribe creates record", func(t *testing.T) {
		require.NoError(t, s.UpsertSubscription(ctx, "a@x.com", sub))

		u, err := s.GetUser(ctx, "a@x.com")
		require.NoError(t, err)
		assert.JSONEq(t, string(sub), string(u.Subscription))
		assert.Empty(t, u.Items)
	})

	t.Run("new subscription replaces old", func(t *testing.T) {
		replacement := json.RawMessage(`{"endpoint":"https://push.example.com/new"}`)
		require.NoError(t, s.UpsertSubscription(ctx, "a@x.com", replacement))

		u, err := s.GetUser(ctx, "a@x.com")
		require.NoError(t, err)
		assert.JSONEq(t, string(replacement), string(u.Subscription))
	})

	t.Run("upsert items creates record", func(t *testing.T) {
		items := []inventory.Item{
			{Name: "Milk", Expiry: "2026-09-02"},
			{Name: "Rice", Expiry: "2026-10-01"},
		}
		require.NoError(t, s.UpsertItems(ctx, "b@x.com", items))

		u, err := s.GetUser(ctx, "b@x.com")
		require.NoError(t, err)
		assert.Equal(t, items, u.Items)
		assert.False(t, u.HasSubscription())
	})

	t.Run("upsert items replaces wholesale", func(t *testing.T) {
		require.NoError(t, s.UpsertItems(ctx, "b@x.com", []inventory.Item{{Name: "Eggs", Expiry: "2026-09-10"}}))

		u, err := s.GetUser(ctx, "b@x.com")
		require.NoError(t, err)
		require.Len(t, u.Items, 1)
		assert.Equal(t, "Eggs", u.Items[0].Name)

		// Replacing with the empty list clears everything.
		require.NoError(t, s.UpsertItems(ctx, "b@x.com", []inventory.Item{}))
		u, err = s.GetUser(ctx, "b@x.com")
		require.NoError(t, err)
		assert.Empty(t, u.Items)
	})

	t.Run("items do not disturb subscription", func(t *testing.T) {
		require.NoError(t, s.UpsertItems(ctx, "a@x.com", []inventory.Item{{Name: "Butter", Expiry: "2026-09-05"}}))

		u, err := s.GetUser(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, u.HasSubscription())
		require.Len(t, u.Items, 1)
	})

	t.Run("all users", func(t *testing.T) {
		entries, err := s.AllUsers(ctx)
		require.NoError(t, err)

		ids := make(map[string]bool, len(entries))
		for _, e := range entries {
			ids[e.ID] = true
		}
		assert.True(t, ids["a@x.com"])
		assert.True(t, ids["b@x.com"])
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemory())
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertItems(ctx, "a@x.com", []inventory.Item{{Name: "Milk", Expiry: "2026-09-02"}}))

	u, err := m.GetUser(ctx, "a@x.com")
	require.NoError(t, err)
	u.Items[0].Name = "Mutated"

	again, err := m.GetUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Milk", again.Items[0].Name)
}
