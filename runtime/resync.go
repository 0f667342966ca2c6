package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var _ contract.Reconciler = (*Resync)(nil)

type ResyncOptions struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Resync is the ResyncEngine. It brings a connection's high-water mark up to
// the store, whatever opened the gap: a reconnect, a missed push, or a write
// made by another process. Polling and pushed events share the same pass.
type Resync struct {
	log   *slog.Logger
	hub   *Hub
	store contract.MessageStore
	opts  ResyncOptions

	// pending holds connections with a pass already queued on their lane.
	pending sync.Map
}

func NewResync(log *slog.Logger, hub *Hub, store contract.MessageStore, opts ResyncOptions) *Resync {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	e := &Resync{log: log, hub: hub, store: store, opts: opts}
	hub.OnConnect(func(id domain.ConnectionID) { e.Trigger(id) })
	hub.OnGap(e.ResyncBefore)
	return e
}

// Trigger queues one pass on the connection's lane, so it is ordered with live
// deliveries. Triggers are coalesced while a pass is waiting.
func (e *Resync) Trigger(id domain.ConnectionID) bool {
	if _, loaded := e.pending.LoadOrStore(id, struct{}{}); loaded {
		return false
	}
	ok := e.hub.Schedule(id, func(ctx context.Context) error {
		e.pending.Delete(id)
		return e.Resync(ctx, id)
	})
	if !ok {
		e.pending.Delete(id)
	}
	return ok
}

// Poll triggers a pass for every registered connection.
func (e *Resync) Poll() {
	for _, session := range e.hub.Registry().Snapshot() {
		e.Trigger(session.ConnectionID)
	}
}

// Observe handles one pushed insert. Connections already past it are left
// alone, which turns a replayed push into a no-op.
func (e *Resync) Observe(msg domain.Message) {
	for _, session := range e.hub.Registry().Snapshot() {
		if session.Delivered(msg.ID) {
			continue
		}
		e.Trigger(session.ConnectionID)
	}
}

// Resync delivers everything the store holds above the connection's mark, in
// ascending ID order. A store that stays unreachable after the bounded retries
// gets the connection dropped so the client reconnects cleanly.
func (e *Resync) Resync(ctx context.Context, id domain.ConnectionID) error {
	return e.resync(ctx, id, 0)
}

// ResyncBefore is Resync stopping short of before. It runs ahead of a live
// message, so IDs another writer committed below it are not skipped.
func (e *Resync) ResyncBefore(ctx context.Context, id domain.ConnectionID, before domain.MessageID) error {
	return e.resync(ctx, id, before)
}

// resync runs passes until the store has nothing above the mark. A zero
// before means no upper bound.
func (e *Resync) resync(ctx context.Context, id domain.ConnectionID, before domain.MessageID) error {
	for {
		session, ok := e.hub.Registry().Lookup(id)
		if !ok {
			return errors.ErrUnknownConnection
		}
		if before > 0 && session.LastDelivered+1 >= before {
			return nil
		}

		batch, err := e.fetch(ctx, id, session.LastDelivered)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Error("Resync gave up, dropping connection",
				"connection_id", id,
				"since", session.LastDelivered,
				"error", err)
			e.hub.Disconnect(id, err)
			return err
		}
		if len(batch) == 0 || batch[len(batch)-1].ID <= session.LastDelivered {
			return nil
		}

		for _, msg := range batch {
			if before > 0 && msg.ID >= before {
				return nil
			}
			if err = e.hub.Deliver(ctx, id, msg); err != nil {
				return err
			}
		}
		e.log.Debug("Resync batch delivered",
			"connection_id", id,
			"count", len(batch),
			"last_id", batch[len(batch)-1].ID)
	}
}

func (e *Resync) fetch(ctx context.Context, id domain.ConnectionID, since domain.MessageID) ([]domain.Message, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.opts.InitialBackoff
	policy.MaxInterval = e.opts.MaxBackoff

	messages, err := backoff.Retry(ctx,
		func() ([]domain.Message, error) {
			return e.store.QuerySince(ctx, since)
		},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(e.opts.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.log.Warn("Resync fetch failed, retrying",
				"connection_id", id,
				"since", since,
				"retry_in", wait,
				"error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: after %d attempts: %v", errors.ErrResyncExhausted, e.opts.MaxAttempts, err)
	}
	return messages, nil
}
