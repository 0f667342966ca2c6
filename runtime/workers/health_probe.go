package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const defaultProbeTimeout = 2 * time.Second

// HealthReporter receives the outcome of every probe.
type HealthReporter interface {
	SetServing(serving bool)
}

// HealthProbeWorker asks the store for its head on every tick and reports
// whether it answered. It also samples the relay process itself.
type HealthProbeWorker struct {
	log      *slog.Logger
	probe    contract.HeadReader
	reporter HealthReporter
	interval time.Duration
	timeout  time.Duration
	self     *process.Process
}

func NewHealthProbeWorker(log *slog.Logger, probe contract.HeadReader,
	reporter HealthReporter, interval time.Duration) *HealthProbeWorker {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("Process metrics disabled", "error", err)
	}
	return &HealthProbeWorker{
		log:      log,
		probe:    probe,
		reporter: reporter,
		interval: interval,
		timeout:  defaultProbeTimeout,
		self:     self,
	}
}

func (w *HealthProbeWorker) Run(ctx context.Context) error {
	w.check(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.reporter.SetServing(false)
			return nil
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *HealthProbeWorker) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	head, err := w.probe.Head(probeCtx)
	if err != nil {
		w.log.Warn("Store probe failed", "error", err)
		w.reporter.SetServing(false)
		return
	}
	w.reporter.SetServing(true)
	w.sample(head)
}

func (w *HealthProbeWorker) sample(head domain.MessageID) {
	if w.self == nil {
		w.log.Debug("Store probe", "head", head)
		return
	}
	cpu, err := w.self.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	ram, err := w.self.MemoryPercent()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "err", err)
	}
	w.log.Debug("Store probe", "head", head, "cpu_percent", cpu, "ram_percent", ram)
}
