package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
)

// SQLite is the default Store backend, backed by an embedded database.
// Every operation is a single statement, so per-key atomicity comes from
// SQLite itself.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a Store over an open SQLite database. The schema is
// managed by migrations (see migrations/sqlite).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

var _ Store = (*SQLite)(nil)

// GetUser implements Store.
func (s *SQLite) GetUser(ctx context.Context, id string) (inventory.User, error) {
	var (
		subscription sql.NullString
		itemsJSON    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subscription, items FROM users WHERE id = ?`, id,
	).Scan(&subscription, &itemsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.User{}, shared.Wrapf(shared.ErrNotFound, "user %q", id)
	}
	if err != nil {
		return inventory.User{}, fmt.Errorf("get user %q: %w", id, err)
	}

	return rowToUser(subscription, itemsJSON)
}

// UpsertSubscription implements Store. The previous descriptor, if any,
// is replaced unconditionally.
func (s *SQLite) UpsertSubscription(ctx context.Context, id string, subscription json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, subscription, items) VALUES (?, ?, '[]')
		ON CONFLICT(id) DO UPDATE SET
			subscription = excluded.subscription,
			updated_at   = CURRENT_TIMESTAMP`,
		id, string(subscription),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for %q: %w", id, err)
	}
	return nil
}

// UpsertItems implements Store. The item list is replaced wholesale.
func (s *SQLite) UpsertItems(ctx context.Context, id string, items []inventory.Item) error {
	itemsJSON, err := marshalItems(items)
	if err != nil {
		return fmt.Errorf("marshal items for %q: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, items) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			items      = excluded.items,
			updated_at = CURRENT_TIMESTAMP`,
		id, string(itemsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert items for %q: %w", id, err)
	}
	return nil
}

// AllUsers implements Store.
func (s *SQLite) AllUsers(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subscription, items FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id           string
			subscription sql.NullString
			itemsJSON    string
		)
		if err := rows.Scan(&id, &subscription, &itemsJSON); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		u, err := rowToUser(subscription, itemsJSON)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, User: u})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return entries, nil
}

func rowToUser(subscription sql.NullString, itemsJSON string) (inventory.User, error) {
	var u inventory.User
	if subscription.Valid && subscription.String != "" && subscription.String != "null" {
		u.Subscription = json.RawMessage(subscription.String)
	}
	items, err := unmarshalItems([]byte(itemsJSON))
	if err != nil {
		return inventory.User{}, fmt.Errorf("unmarshal items: %w", err)
	}
	u.Items = items
	return u, nil
}
