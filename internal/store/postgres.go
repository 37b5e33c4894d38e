package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
)

// Postgres is the optional Store backend for deployments that already run
// PostgreSQL. Selected with STORE_DRIVER=postgres.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Store over a pgx pool and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			subscription JSONB,
			items        JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure users table: %w", err)
	}
	return nil
}

// GetUser implements Store.
func (p *Postgres) GetUser(ctx context.Context, id string) (inventory.User, error) {
	var (
		subscription []byte
		itemsJSON    []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT subscription, items FROM users WHERE id = $1`, id,
	).Scan(&subscription, &itemsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.User{}, shared.Wrapf(shared.ErrNotFound, "user %q", id)
	}
	if err != nil {
		return inventory.User{}, fmt.Errorf("get user %q: %w", id, err)
	}

	var u inventory.User
	if len(subscription) > 0 && string(subscription) != "null" {
		u.Subscription = json.RawMessage(subscription)
	}
	items, err := unmarshalItems(itemsJSON)
	if err != nil {
		return inventory.User{}, fmt.Errorf("unmarshal items for %q: %w", id, err)
	}
	u.Items = items
	return u, nil
}

// UpsertSubscription implements Store.
func (p *Postgres) UpsertSubscription(ctx context.Context, id string, subscription json.RawMessage) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, subscription, items) VALUES ($1, $2, '[]'::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			subscription = EXCLUDED.subscription,
			updated_at   = now()`,
		id, subscription,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for %q: %w", id, err)
	}
	return nil
}

// UpsertItems implements Store.
func (p *Postgres) UpsertItems(ctx context.Context, id string, items []inventory.Item) error {
	itemsJSON, err := marshalItems(items)
	if err != nil {
		return fmt.Errorf("marshal items for %q: %w", id, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO users (id, items) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			items      = EXCLUDED.items,
			updated_at = now()`,
		id, itemsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert items for %q: %w", id, err)
	}
	return nil
}

// AllUsers implements Store.
func (p *Postgres) AllUsers(ctx context.Context) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, subscription, items FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id           string
			subscription []byte
			itemsJSON    []byte
		)
		if err := rows.Scan(&id, &subscription, &itemsJSON); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}

		var u inventory.User
		if len(subscription) > 0 && string(subscription) != "null" {
			u.Subscription = json.RawMessage(subscription)
		}
		items, err := unmarshalItems(itemsJSON)
		if err != nil {
			return nil, fmt.Errorf("unmarshal items for %q: %w", id, err)
		}
		u.Items = items

		entries = append(entries, Entry{ID: id, User: u})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return entries, nil
}
