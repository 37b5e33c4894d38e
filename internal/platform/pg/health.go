package pg

import (
	"context"
	"fmt"
	"time"
)

// HealthCheckOptions configures database availability waiting.
type HealthCheckOptions struct {
	// MaxRetries is the maximum number of attempts (0 = until context deadline).
	MaxRetries int
	// InitialInterval is the delay before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth of the delay.
	MaxInterval time.Duration
	// PingTimeout bounds each individual ping.
	PingTimeout time.Duration
}

// DefaultHealthCheckOptions returns options suited for container startup
// where the database may come up slightly after the service.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB blocks until the database behind dsn answers a ping, retrying
// with exponential backoff, or fails after MaxRetries / context expiry.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	attempt := 0
	interval := opts.InitialInterval

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", ctx.Err())
		default:
		}

		attempt++
		err := ping(ctx, dsn, opts.PingTimeout)
		if err == nil {
			return nil
		}

		if opts.MaxRetries > 0 && attempt >= opts.MaxRetries {
			return fmt.Errorf("database not reachable after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
}

func ping(ctx context.Context, dsn string, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := NewPoolWithOptions(pingCtx, dsn, PoolOptions{
		MaxConns:    1,
		MinConns:    0,
		PingTimeout: timeout,
	})
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}
