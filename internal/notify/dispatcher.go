// Package notify implements near-expiry notification dispatch: evaluating
// each user's item ledger and delivering one push message per qualifying
// item, tolerating per-item and per-user failure.
package notify

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
	"fridgemind/internal/store"
)

// Transport delivers an opaque payload to a previously registered push
// endpoint. The subscription descriptor is passed through verbatim.
// Implementations may fail per endpoint independent of other endpoints.
type Transport interface {
	Send(ctx context.Context, subscription json.RawMessage, payload []byte) error
}

// Options configures a Dispatcher.
type Options struct {
	Store     store.Store
	Transport Transport
	Logger    *slog.Logger
	// ThresholdDays is the near-expiry window (default 3).
	ThresholdDays int
	// Location is the calendar used to resolve "today" (default UTC).
	Location *time.Location
	// Now overrides the clock for tests.
	Now func() time.Time
	// BatchWorkers bounds concurrent per-user dispatch in SendAll (default 8).
	BatchWorkers int
}

// Dispatcher sends near-expiry notifications. A failed delivery for one
// item or one user never suppresses delivery for the rest of the batch;
// callers observe partial failure only as a reduced success count.
type Dispatcher struct {
	store     store.Store
	transport Transport
	log       *slog.Logger
	threshold int
	loc       *time.Location
	now       func() time.Time
	workers   int
}

// NewDispatcher creates a Dispatcher with the given collaborators.
func NewDispatcher(opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	threshold := opts.ThresholdDays
	if threshold == 0 {
		threshold = inventory.DefaultThresholdDays
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.BatchWorkers
	if workers <= 0 {
		workers = 8
	}
	return &Dispatcher{
		store:     opts.Store,
		transport: opts.Transport,
		log:       log,
		threshold: threshold,
		loc:       loc,
		now:       now,
		workers:   workers,
	}
}

// SendNearExpiryForUser delivers one notification per near-expiry item in
// the given user record and returns the number of successful sends. A user
// without a subscription yields 0 without touching the transport. Delivery
// failures are logged and swallowed so remaining items still go out.
func (d *Dispatcher) SendNearExpiryForUser(ctx context.Context, id string, user inventory.User) int {
	if !user.HasSubscription() {
		return 0
	}

	near := inventory.NearExpiry(user.Items, d.now(), d.threshold, d.loc)
	sent := 0
	for _, item := range near {
		payload := nearExpiryPayload(item)
		if err := d.transport.Send(ctx, user.Subscription, payload.Encode()); err != nil {
			d.log.Warn("push failed",
				slog.String("user", id),
				slog.String("item", item.Name),
				slog.Any("error", shared.MarkKind(err, shared.KindTransport)),
			)
			continue
		}
		sent++
	}
	return sent
}

// SendToUser is the manual single-user trigger. It fails fast with a
// NotFound error when the user or its subscription is absent.
func (d *Dispatcher) SendToUser(ctx context.Context, id string) (int, error) {
	user, err := d.store.GetUser(ctx, id)
	if err != nil {
		return 0, err
	}
	if !user.HasSubscription() {
		return 0, shared.Wrapf(shared.ErrNotFound, "no subscription for user %q", id)
	}
	return d.SendNearExpiryForUser(ctx, id, user), nil
}

// SendAll runs one batch dispatch over every user in the registry and
// returns the total number of successful sends. Users are fanned out
// across workers sharded by user ID, so distinct users run concurrently
// while no single user is ever dispatched twice at once. Per-user counts
// and failures are logged; callers get only the aggregate.
func (d *Dispatcher) SendAll(ctx context.Context) (int, error) {
	entries, err := d.store.AllUsers(ctx)
	if err != nil {
		return 0, err
	}

	workers := d.workers
	if len(entries) < workers {
		workers = len(entries)
	}
	if workers <= 1 {
		total := 0
		for _, e := range entries {
			total += d.sendForEntry(ctx, e)
		}
		return total, nil
	}

	chans := make([]chan store.Entry, workers)
	for i := range chans {
		chans[i] = make(chan store.Entry, 16)
	}

	var total int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for _, ch := range chans {
		go func(in <-chan store.Entry) {
			defer wg.Done()
			for e := range in {
				atomic.AddInt64(&total, int64(d.sendForEntry(ctx, e)))
			}
		}(ch)
	}

	for _, e := range entries {
		chans[shardFor(e.ID, workers)] <- e
	}
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()

	return int(atomic.LoadInt64(&total)), nil
}

func (d *Dispatcher) sendForEntry(ctx context.Context, e store.Entry) int {
	sent := d.SendNearExpiryForUser(ctx, e.ID, e.User)
	if sent > 0 {
		d.log.Info("near-expiry notifications sent", slog.String("user", e.ID), slog.Int("sent", sent))
	}
	return sent
}

// NotifyDirect sends a single ad-hoc message to a user, bypassing expiry
// evaluation entirely.
func (d *Dispatcher) NotifyDirect(ctx context.Context, id, title, body string) error {
	user, err := d.store.GetUser(ctx, id)
	if err != nil && !shared.IsNotFound(err) {
		return err
	}
	if err != nil || !user.HasSubscription() {
		return shared.Wrapf(shared.ErrNotFound, "no subscription for user %q", id)
	}

	payload := Payload{Title: title, Body: body}
	if err := d.transport.Send(ctx, user.Subscription, payload.Encode()); err != nil {
		return shared.MarkKind(err, shared.KindTransport)
	}
	return nil
}

func shardFor(id string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(workers))
}
