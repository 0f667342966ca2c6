// Package redisfeed turns any MessageStore into a ChangeStream shared across
// relay instances: every Append is published on a Redis channel and every
// instance subscribes to it.
package redisfeed

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultChannel = "chat-relay:messages"
	publishTimeout = 500 * time.Millisecond
	publishBuffer  = 1024
)

var (
	_ contract.MessageStore = (*Feed)(nil)
	_ contract.ChangeStream = (*Feed)(nil)
)

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Feed publishes from a single goroutine so Append never waits on Redis: the
// hub appends under its send lock.
type Feed struct {
	store   contract.MessageStore
	client  redisPubSub
	channel string
	log     *slog.Logger

	outgoing  chan domain.Message
	closeOnce sync.Once
	done      chan struct{}
}

func NewFeed(log *slog.Logger, store contract.MessageStore, client *redis.Client, channel string) *Feed {
	return newFeed(log, store, client, channel, publishBuffer)
}

func newFeed(log *slog.Logger, store contract.MessageStore, client redisPubSub, channel string, buffer int) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	f := &Feed{
		store:    store,
		client:   client,
		channel:  channel,
		log:      log,
		outgoing: make(chan domain.Message, buffer),
		done:     make(chan struct{}),
	}
	go f.publishLoop()
	return f
}

// Append stores, then queues the publish. A full queue or a failed publish is
// only logged: the message is durable and the resync poller still delivers it.
func (f *Feed) Append(ctx context.Context, author, content string) (domain.Message, error) {
	msg, err := f.store.Append(ctx, author, content)
	if err != nil {
		return msg, err
	}
	select {
	case f.outgoing <- msg:
	default:
		f.log.Warn("Publish queue full, dropping", "message_id", msg.ID, "channel", f.channel)
	}
	return msg, nil
}

func (f *Feed) publishLoop() {
	defer close(f.done)
	for msg := range f.outgoing {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := f.client.Publish(ctx, f.channel, repositories.EncodeMessage(msg)).Err(); err != nil {
			f.log.Warn("Publish failed", "message_id", msg.ID, "channel", f.channel, "error", err)
		}
		cancel()
	}
}

// Close flushes queued publishes. Append must not be called afterwards.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() { close(f.outgoing) })
	<-f.done
	return nil
}

func (f *Feed) QuerySince(ctx context.Context, id domain.MessageID) ([]domain.Message, error) {
	return f.store.QuerySince(ctx, id)
}

// Head delegates to the wrapped store when it can tell its head.
func (f *Feed) Head(ctx context.Context) (domain.MessageID, error) {
	if reader, ok := f.store.(contract.HeadReader); ok {
		return reader.Head(ctx)
	}
	return 0, fmt.Errorf("store cannot report its head")
}

// Subscribe receives every message published by any instance until ctx is done.
func (f *Feed) Subscribe(ctx context.Context, onInsert func(domain.Message)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so a dead Redis is an error
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", f.channel)
			}
			f.handle(payload.Payload, onInsert)
		}
	}
}

func (f *Feed) handle(payload string, onInsert func(domain.Message)) {
	msg, err := repositories.DecodeMessage([]byte(payload))
	if err != nil {
		f.log.Warn("Dropping undecodable payload", "channel", f.channel, "error", err)
		return
	}
	onInsert(msg)
}
