// Package runtime holds the connection hub: the registry of live connections,
// the broadcast path and the resync engine.
// It orchestrates delivery without containing storage or transport details.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	defaultSendTimeout = 5 * time.Second
	defaultQueueSize   = 256
)

type HubOptions struct {
	EchoToSender     bool
	SendTimeout      time.Duration
	QueueSize        int
	MaxContentLength int
}

// Hub is the BroadcastHub.
// Send appends first and fans out after: the store is always at least as up to
// date as any connection. Fan-out only enqueues on each connection's lane, so a
// slow client never stalls the others.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	store    contract.MessageStore
	censor   contract.Censor
	opts     HubOptions

	// sendMu orders append + enqueue so every lane sees local messages by ascending ID.
	sendMu    sync.Mutex
	onConnect []func(domain.ConnectionID)
	onGap     []GapFiller
	// lastAppended is the highest ID this hub appended, guarded by sendMu.
	lastAppended domain.MessageID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(log *slog.Logger, registry *Registry, store contract.MessageStore,
	censor contract.Censor, opts HubOptions) *Hub {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:      log,
		registry: registry,
		store:    store,
		censor:   censor,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// OnConnect registers fn to run for every new connection before any live
// message can reach its lane. Not safe to call once connections are accepted.
func (h *Hub) OnConnect(fn func(id domain.ConnectionID)) {
	h.onConnect = append(h.onConnect, fn)
}

// GapFiller delivers what the store holds below before to one connection. It
// runs on that connection's lane.
type GapFiller func(ctx context.Context, id domain.ConnectionID, before domain.MessageID) error

// OnGap registers fn to run on every lane before a live message whose ID
// shows that another writer appended in between. Same rules as OnConnect.
func (h *Hub) OnGap(fn GapFiller) {
	h.onGap = append(h.onGap, fn)
}

// Connect admits a transport and starts its delivery lane.
func (h *Hub) Connect(transport contract.Transport, seed domain.Session) domain.ConnectionID {
	l := newLane(h.ctx, transport, h.opts.QueueSize, h.opts.SendTimeout, h.log)

	h.sendMu.Lock()
	id := h.registry.Register(l, seed)
	l.id = id
	for _, fn := range h.onConnect {
		fn(id)
	}
	h.sendMu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		l.run()
	}()

	h.log.Info("Connection registered",
		"connection_id", id,
		"remote_addr", seed.RemoteAddr,
		"since", seed.LastDelivered,
		"connections", h.registry.Len())
	return id
}

// Send validates content, appends it and fans the stored message out.
// A failed append is returned as is and nothing is delivered.
func (h *Hub) Send(ctx context.Context, origin domain.ConnectionID,
	identity domain.Identity, content string) (domain.Message, error) {
	content = domain.NormalizeContent(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyMessage
	}
	if h.opts.MaxContentLength > 0 && utf8.RuneCountInString(content) > h.opts.MaxContentLength {
		return domain.Message{}, fmt.Errorf("%w: longer than %d characters",
			errors.ErrStoreRejected, h.opts.MaxContentLength)
	}
	if h.censor != nil {
		content = h.censor.Censor(content)
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	msg, err := h.store.Append(ctx, identity.Author(), content)
	if err != nil {
		if errors.KindOf(err) != errors.KindMessage {
			err = fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		h.log.Warn("Append failed", "connection_id", origin, "error", err)
		return domain.Message{}, err
	}

	gap := msg.ID > h.lastAppended+1
	if msg.ID > h.lastAppended {
		h.lastAppended = msg.ID
	}
	h.fanout(origin, msg, gap)
	return msg, nil
}

// fanout queues msg on every lane. With a gap, a lane first catches up on the
// IDs another writer took, otherwise the mark would jump over them for good.
func (h *Hub) fanout(origin domain.ConnectionID, msg domain.Message, gap bool) {
	sessions := h.registry.Snapshot()
	for _, session := range sessions {
		id := session.ConnectionID
		echo := id != origin || h.opts.EchoToSender
		h.Schedule(id, func(ctx context.Context) error {
			if gap {
				if err := h.fillGap(ctx, id, msg.ID); err != nil {
					return err
				}
			}
			if !echo {
				// The sender already has its own line: only move the mark, in lane order.
				return h.registry.Advance(id, msg.ID)
			}
			return h.Deliver(ctx, id, msg)
		})
	}
	h.log.Debug("Message fanned out", "message_id", msg.ID, "connections", len(sessions), "gap", gap)
}

func (h *Hub) fillGap(ctx context.Context, id domain.ConnectionID, before domain.MessageID) error {
	for _, fn := range h.onGap {
		if err := fn(ctx, id, before); err != nil {
			return err
		}
	}
	return nil
}

// Deliver writes one message to one connection. It must run on that
// connection's lane. Messages at or below the high-water mark are skipped.
// A failing transport disconnects the connection.
func (h *Hub) Deliver(ctx context.Context, id domain.ConnectionID, msg domain.Message) error {
	session, ok := h.registry.Lookup(id)
	if !ok {
		return errors.ErrUnknownConnection
	}
	if session.Delivered(msg.ID) {
		return nil
	}
	outbox, ok := h.registry.Outbox(id)
	if !ok {
		return errors.ErrUnknownConnection
	}

	frame, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err = outbox.Write(ctx, frame); err != nil {
		h.Disconnect(id, err)
		return fmt.Errorf("%w: message %d: %v", errors.ErrDeliveryFailed, msg.ID, err)
	}
	return h.registry.Advance(id, msg.ID)
}

// Notify queues a system notice for one connection.
func (h *Hub) Notify(id domain.ConnectionID, notice domain.Notice) bool {
	return h.Schedule(id, func(ctx context.Context) error {
		outbox, ok := h.registry.Outbox(id)
		if !ok {
			return errors.ErrUnknownConnection
		}
		frame, err := protocol.EncodeNotice(notice)
		if err != nil {
			return err
		}
		if err = outbox.Write(ctx, frame); err != nil {
			h.Disconnect(id, err)
			return err
		}
		return nil
	})
}

// Schedule queues a task on the connection's lane.
// A connection whose queue is full is dropped as a slow consumer.
func (h *Hub) Schedule(id domain.ConnectionID, task contract.Task) bool {
	outbox, ok := h.registry.Outbox(id)
	if !ok {
		return false
	}
	if outbox.Schedule(task) {
		return true
	}
	h.Disconnect(id, errors.ErrSlowConsumer)
	return false
}

// Disconnect unregisters the connection and closes its transport. Idempotent.
func (h *Hub) Disconnect(id domain.ConnectionID, reason error) {
	outbox, _ := h.registry.Outbox(id)
	if h.registry.Unregister(id) {
		h.log.Info("Connection closed",
			"connection_id", id,
			"reason", reason,
			"connections", h.registry.Len())
	}
	if outbox != nil {
		outbox.Close()
	}
}

type HubStats struct {
	Connections       int
	Authenticated     int
	DeepestQueue      int
	DeepestConnection domain.ConnectionID
}

func (h *Hub) Stats() HubStats {
	var stats HubStats
	for _, session := range h.registry.Snapshot() {
		stats.Connections++
		if session.Identity.Authenticated() {
			stats.Authenticated++
		}
		outbox, ok := h.registry.Outbox(session.ConnectionID)
		if !ok {
			continue
		}
		if l, ok := outbox.(*lane); ok && l.Pending() > stats.DeepestQueue {
			stats.DeepestQueue = l.Pending()
			stats.DeepestConnection = session.ConnectionID
		}
	}
	return stats
}

// Shutdown closes every connection and waits for the lanes to stop.
func (h *Hub) Shutdown(ctx context.Context) error {
	for _, session := range h.registry.Snapshot() {
		h.Disconnect(session.ConnectionID, context.Canceled)
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.Info("Hub stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
