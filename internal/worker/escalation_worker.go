package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-sla/sla-service/internal/service"
)

// Sweeper runs one escalation pass over all open tickets.
type Sweeper interface {
	SweepEscalations(ctx context.Context) (service.SweepResult, error)
}

// EscalationWorker periodically sweeps open tickets for due escalation levels.
type EscalationWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewEscalationWorker builds the worker. A non-positive interval disables it.
func NewEscalationWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	return &EscalationWorker{sweeper: sweeper, interval: interval, logger: logger}
}

// Run blocks until ctx is done. The first sweep starts after one interval.
func (w *EscalationWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("escalation sweep disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escalation worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *EscalationWorker) sweep(ctx context.Context) {
	// a sweep may not outlive its own period
	sweepCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	result, err := w.sweeper.SweepEscalations(sweepCtx)
	if err != nil {
		w.logger.Warn("escalation sweep aborted", zap.Error(err), zap.Int("tickets", result.Tickets))
		return
	}
	if result.Fired > 0 || result.Failed > 0 {
		w.logger.Info("escalation sweep",
			zap.Int("tickets", result.Tickets),
			zap.Int("fired", result.Fired),
			zap.Int("failed", result.Failed))
	}
}
