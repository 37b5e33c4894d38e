// Package store persists per-user subscription and item records behind a
// small key-value interface. The notification core depends only on this
// interface, never on a concrete backend.
package store

import (
	"context"
	"encoding/json"

	"fridgemind/internal/inventory"
)

// Entry pairs a user identifier with its record, as returned by AllUsers.
type Entry struct {
	ID   string
	User inventory.User
}

// Store is the subscription registry and item ledger accessor contract.
// Implementations must make reads and writes atomic per user key; no
// cross-user locking is required. GetUser returns shared.ErrNotFound
// (wrapped) for unknown users. Both upserts create the user record when
// absent and replace the targeted field wholesale, never merging.
type Store interface {
	GetUser(ctx context.Context, id string) (inventory.User, error)
	UpsertSubscription(ctx context.Context, id string, subscription json.RawMessage) error
	UpsertItems(ctx context.Context, id string, items []inventory.Item) error
	AllUsers(ctx context.Context) ([]Entry, error)
}

func marshalItems(items []inventory.Item) ([]byte, error) {
	if items == nil {
		items = []inventory.Item{}
	}
	return json.Marshal(items)
}

func unmarshalItems(data []byte) ([]inventory.Item, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []inventory.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
