package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"metas/internal/log"
)

// DefaultReconcileTimeout bounds one scheduled reconcile pass.
const DefaultReconcileTimeout = 2 * time.Minute

// Scheduler runs the reconcile pass on a cron schedule as a backstop for
// lost ledger events.
type Scheduler struct {
	cron     *cron.Cron
	worker   *LedgerWorker
	logger   *log.Logger
	schedule string
	timeout  time.Duration
}

// NewScheduler creates a scheduler for the given cron spec. Panics inside a
// job are recovered and logged, and overlapping runs are skipped.
func NewScheduler(w *LedgerWorker, schedule string, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentScheduler)
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		worker:   w,
		logger:   logger,
		schedule: schedule,
		timeout:  DefaultReconcileTimeout,
	}
}

// Start registers the reconcile job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunReconcile); err != nil {
		return fmt.Errorf("schedule reconcile job %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Scheduled reconcile job", "schedule", s.schedule)
	return nil
}

// RunReconcile performs one bounded reconcile pass.
func (s *Scheduler) RunReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	completed, err := s.worker.ReconcileActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Reconcile pass finished with errors",
			log.FieldOperation, log.OpReconcile,
			log.FieldError, err,
			log.FieldDuration, time.Since(start).Milliseconds())
		return
	}
	s.logger.DebugContext(ctx, "Reconcile pass finished",
		"completed", completed,
		log.FieldDuration, time.Since(start).Milliseconds())
}

// Stop stops scheduling new runs. The returned context is done once the
// running job, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
