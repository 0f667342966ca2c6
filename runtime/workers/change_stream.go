package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

const defaultChangeBuffer = 1024

// ChangeStreamWorker forwards store insert events to the reconciler.
// Events go through a bounded buffer: when it overflows they are dropped and
// the next drained event turns into a full poll, which covers whatever was lost.
// A closed stream is an error so the supervisor resubscribes.
type ChangeStreamWorker struct {
	log        *slog.Logger
	stream     contract.ChangeStream
	reconciler contract.Reconciler
	bufferSize int
}

func NewChangeStreamWorker(log *slog.Logger, stream contract.ChangeStream,
	reconciler contract.Reconciler, bufferSize int) *ChangeStreamWorker {
	if bufferSize <= 0 {
		bufferSize = defaultChangeBuffer
	}
	return &ChangeStreamWorker{log: log, stream: stream, reconciler: reconciler, bufferSize: bufferSize}
}

func (w *ChangeStreamWorker) Run(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan domain.Message, w.bufferSize)
	var overflow atomic.Bool
	errc := make(chan error, 1)
	go func() {
		errc <- w.stream.Subscribe(streamCtx, func(msg domain.Message) {
			select {
			case events <- msg:
			default:
				overflow.Store(true)
			}
		})
	}()

	// Anything inserted while we were not subscribed
	w.reconciler.Poll()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping change stream")
			return nil
		case err := <-errc:
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = fmt.Errorf("change stream closed")
			}
			return err
		case msg := <-events:
			if overflow.Swap(false) {
				w.log.Warn("Change stream buffer overflowed, polling", "message_id", msg.ID)
				w.reconciler.Poll()
				continue
			}
			w.reconciler.Observe(msg)
		}
	}
}
