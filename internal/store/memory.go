package store

import (
	"context"
	"encoding/json"
	"sync"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
)

// Memory is an in-process Store used by tests and local development.
// A single mutex guards the map; each operation touches one key.
type Memory struct {
	mu    sync.RWMutex
	users map[string]inventory.User
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]inventory.User)}
}

var _ Store = (*Memory)(nil)

// GetUser implements Store.
func (m *Memory) GetUser(_ context.Context, id string) (inventory.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return inventory.User{}, shared.Wrapf(shared.ErrNotFound, "user %q", id)
	}
	return copyUser(u), nil
}

// UpsertSubscription implements Store.
func (m *Memory) UpsertSubscription(_ context.Context, id string, subscription json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.users[id]
	u.Subscription = append(json.RawMessage(nil), subscription...)
	m.users[id] = u
	return nil
}

// UpsertItems implements Store.
func (m *Memory) UpsertItems(_ context.Context, id string, items []inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.users[id]
	u.Items = append([]inventory.Item(nil), items...)
	m.users[id] = u
	return nil
}

// AllUsers implements Store. Iteration order is unspecified.
func (m *Memory) AllUsers(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.users))
	for id, u := range m.users {
		entries = append(entries, Entry{ID: id, User: copyUser(u)})
	}
	return entries, nil
}

// copyUser returns a snapshot detached from the map so callers can't
// mutate stored state.
func copyUser(u inventory.User) inventory.User {
	return inventory.User{
		Subscription: append(json.RawMessage(nil), u.Subscription...),
		Items:        append([]inventory.Item(nil), u.Items...),
	}
}
