package worker

import (
	"context"
	"errors"
	"fmt"

	"metas/internal/amqp"
	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/services"
	"metas/internal/sheets"
)

// Backend is the slice of the backend the worker reads and completes goals
// through.
type Backend interface {
	services.LedgerReader
	GetProof(ctx context.Context, proofID string) (core.Proof, error)
	ListGoalsByStatus(ctx context.Context, status core.GoalStatus) ([]core.Goal, error)
}

// LedgerWorker reacts to ledger events: it completes goals whose approved
// deposits cover the target and mirrors approved deposits when a mirror is
// configured.
type LedgerWorker struct {
	backend    Backend
	mirror     sheets.LedgerMirror
	logger     *log.Logger
	structured *log.StructuredLogger
}

// NewLedgerWorker builds a worker. A nil mirror disables mirroring.
func NewLedgerWorker(b Backend, mirror sheets.LedgerMirror, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)
	return &LedgerWorker{
		backend:    b,
		mirror:     mirror,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
	}
}

// HandleEvent processes one ledger event. It satisfies amqp.Handler.
func (w *LedgerWorker) HandleEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	w.logger.DebugContext(ctx, "Processing ledger event",
		log.FieldEventType, ev.Type,
		log.FieldGoalID, ev.GoalID,
		log.FieldProofID, ev.ProofID)

	if ev.Type != amqp.EventProofDecided {
		metrics.EventsConsumed.WithLabelValues(string(ev.Type), "ignored").Inc()
		return nil
	}

	if err := w.handleDecision(ctx, ev); err != nil {
		metrics.EventsConsumed.WithLabelValues(string(ev.Type), "error").Inc()
		return err
	}
	metrics.EventsConsumed.WithLabelValues(string(ev.Type), "ok").Inc()
	return nil
}

func (w *LedgerWorker) handleDecision(ctx context.Context, ev amqp.LedgerEvent) error {
	g, err := services.CompleteIfReached(ctx, w.backend, ev.GoalID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Goal gone before its decision was processed",
			log.FieldGoalID, ev.GoalID, log.FieldProofID, ev.ProofID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile goal %s: %w", ev.GoalID, err)
	}
	if g.Status == core.GoalCompleted {
		w.logger.InfoContext(ctx, "Goal completed", log.FieldGoalID, g.ID)
	}

	if w.mirror == nil || core.Decision(ev.Decision) != core.DecisionApproved || ev.ProofID == "" {
		return nil
	}
	return w.mirrorDeposit(ctx, g, ev.ProofID)
}

// mirrorDeposit appends the approved proof to the mirror. The proof is read
// back so a stale event never mirrors a deposit that is not approved.
func (w *LedgerWorker) mirrorDeposit(ctx context.Context, g core.Goal, proofID string) error {
	p, err := w.backend.GetProof(ctx, proofID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get proof %s: %w", proofID, err)
	}
	if p.Decision != core.DecisionApproved {
		w.logger.WarnContext(ctx, "Skipping mirror of proof that is not approved",
			log.FieldProofID, p.ID, log.FieldDecision, p.Decision)
		return nil
	}

	d := sheets.DepositFromProof(g, p)
	rowRef, err := w.mirror.AppendDeposit(ctx, d)
	if err != nil {
		w.structured.LogError(ctx, "Failed to mirror deposit", err, log.ComponentMirror, log.OpMirror,
			log.NewFields().WithGoal(g.ID, p.UserID).WithProof(p.ID, p.Slot, string(p.Decision)))
		return fmt.Errorf("mirror proof %s: %w", p.ID, err)
	}

	w.logger.InfoContext(ctx, "Mirrored deposit",
		log.FieldGoalID, g.ID,
		log.FieldProofID, p.ID,
		log.FieldSlot, p.Slot,
		log.FieldAmountCents, d.Amount.Cents,
		"row_ref", rowRef)
	return nil
}

// ReconcileActive runs the completion check over every active goal and
// returns how many were completed. A failing goal does not stop the pass.
func (w *LedgerWorker) ReconcileActive(ctx context.Context) (int, error) {
	goals, err := w.backend.ListGoalsByStatus(ctx, core.GoalActive)
	if err != nil {
		return 0, fmt.Errorf("list active goals: %w", err)
	}

	completed := 0
	var errs []error
	for _, g := range goals {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		updated, err := services.CompleteIfReached(ctx, w.backend, g.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to reconcile goal",
				log.FieldOperation, log.OpReconcile,
				log.FieldGoalID, g.ID,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("goal %s: %w", g.ID, err))
			continue
		}
		if updated.Status == core.GoalCompleted {
			completed++
		}
	}

	w.logger.InfoContext(ctx, "Reconciled active goals",
		"checked", len(goals),
		"completed", completed,
		"failed", len(errs))
	return completed, errors.Join(errs...)
}
