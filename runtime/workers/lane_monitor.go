package workers

import (
	"chat-relay/runtime"
	"context"
	"log/slog"
	"time"
)

// LaneMonitorWorker periodically logs connection counts and the deepest
// delivery queue. Reading queue lengths is non-blocking, so sampling never
// interferes with delivery.
type LaneMonitorWorker struct {
	log       *slog.Logger
	hub       *runtime.Hub
	interval  time.Duration
	threshold int
}

// NewLaneMonitorWorker warns once a queue holds more than threshold tasks.
func NewLaneMonitorWorker(log *slog.Logger, hub *runtime.Hub, interval time.Duration, threshold int) *LaneMonitorWorker {
	return &LaneMonitorWorker{log: log, hub: hub, interval: interval, threshold: threshold}
}

func (w *LaneMonitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.hub.Stats()
			if w.threshold > 0 && stats.DeepestQueue > w.threshold {
				w.log.Warn("Delivery queue backing up",
					"connection_id", stats.DeepestConnection,
					"queued", stats.DeepestQueue)
			}
			w.log.Debug("Hub stats",
				"connections", stats.Connections,
				"authenticated", stats.Authenticated,
				"deepest_queue", stats.DeepestQueue)
		}
	}
}
