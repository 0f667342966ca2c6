package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

// ResyncPollerWorker triggers a resync of every connection at a fixed interval.
// It is the safety net for stores without a change stream and for lost pushes.
type ResyncPollerWorker struct {
	log        *slog.Logger
	reconciler contract.Reconciler
	interval   time.Duration
}

func NewResyncPollerWorker(log *slog.Logger, reconciler contract.Reconciler, interval time.Duration) *ResyncPollerWorker {
	return &ResyncPollerWorker{log: log, reconciler: reconciler, interval: interval}
}

func (w *ResyncPollerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping resync poller")
			return nil
		case <-ticker.C:
			w.reconciler.Poll()
		}
	}
}
