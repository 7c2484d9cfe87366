package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// SessionSweeper restarts whatsapp sessions that dropped.
type SessionSweeper interface {
	ReconnectDropped(ctx context.Context) (int, error)
}

// ReconnectWorker periodically restarts paired sessions that are
// DISCONNECTED. whatsmeow reconnects on its own after transient drops;
// this covers sessions that gave up or were lost across restarts.
type ReconnectWorker struct {
	cron    *cron.Cron
	sweeper SessionSweeper
	logger  *zap.Logger
}

// NewReconnectWorker validates the schedule and registers the sweep.
func NewReconnectWorker(sweeper SessionSweeper, schedule string, logger *zap.Logger) (*ReconnectWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ReconnectWorker{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		logger:  logger.Named("reconnect"),
	}
	if _, err := w.cron.AddFunc(schedule, func() { w.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("reconnect worker: invalid schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (w *ReconnectWorker) Run(ctx context.Context) error {
	w.cron.Start()
	w.logger.Info("reconnect worker started")

	<-ctx.Done()
	stopped := w.cron.Stop()
	<-stopped.Done()
	w.logger.Info("reconnect worker stopped")
	return nil
}

// Sweep runs one pass and returns how many sessions were restarted.
func (w *ReconnectWorker) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	restarted, err := w.sweeper.ReconnectDropped(ctx)
	if err != nil {
		w.logger.Warn("reconnect sweep failed", zap.Error(err))
		return 0
	}
	if restarted > 0 {
		w.logger.Info("restarted dropped sessions", zap.Int("count", restarted))
	}
	return restarted
}
