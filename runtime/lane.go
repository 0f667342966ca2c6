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
)

var _ contract.Outbox = (*lane)(nil)

// lane is the delivery lane of one connection.
// It owns every write to the transport: tasks run one at a time, in the order
// they were scheduled, on a dedicated goroutine. A full queue means the client
// does not keep up.
type lane struct {
	id          domain.ConnectionID
	transport   contract.Transport
	tasks       chan contract.Task
	sendTimeout time.Duration
	log         *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newLane(parent context.Context, transport contract.Transport, size int,
	sendTimeout time.Duration, log *slog.Logger) *lane {
	ctx, cancel := context.WithCancel(parent)
	return &lane{
		transport:   transport,
		tasks:       make(chan contract.Task, size),
		sendTimeout: sendTimeout,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Schedule never blocks. It returns false when the lane is closed or full.
func (l *lane) Schedule(task contract.Task) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.tasks <- task:
		return true
	default:
		return false
	}
}

// Pending is the number of queued tasks.
func (l *lane) Pending() int {
	return len(l.tasks)
}

// Write sends one frame, giving up after the send timeout even if the
// transport ignores the deadline.
func (l *lane) Write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- l.transport.Write(ctx, frame) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, ctx.Err())
	}
}

// Close abandons pending tasks and closes the transport. Safe to call from the
// lane itself and more than once.
func (l *lane) Close() {
	l.closeOnce.Do(func() {
		l.cancel()
		if err := l.transport.Close(); err != nil {
			l.log.Debug("Transport close failed", "connection_id", l.id, "error", err)
		}
	})
}

func (l *lane) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case task := <-l.tasks:
			if err := task(l.ctx); err != nil && l.ctx.Err() == nil {
				l.log.Debug("Lane task failed", "connection_id", l.id, "error", err)
			}
		}
	}
}
