package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dolgi/internal/amqp"
	"dolgi/internal/services"
	"dolgi/internal/settlement"
)

// SettleWorker consumes settlement requests from AMQP and runs the
// settlement engine. One worker instance serializes runs; concurrent
// requests queue up at the broker.
type SettleWorker struct {
	settler *services.SettlementService
}

func NewSettleWorker(settler *services.SettlementService) *SettleWorker {
	return &SettleWorker{settler: settler}
}

// HandleSettlementRequest processes a single settlement request message.
// An inconsistent or contested ledger is reported over the result queue
// and acked: requeueing the message would just replay the same failure.
func (w *SettleWorker) HandleSettlementRequest(ctx context.Context, msg *amqp.SettlementRequestMessage) error {
	slog.InfoContext(ctx, "Processing settlement request",
		"requested_by", msg.RequestedBy)

	result, err := w.settler.Settle(ctx)
	if err != nil {
		var inconsistency *settlement.InconsistencyError
		var commitErr *settlement.CommitError
		if errors.As(err, &inconsistency) || errors.As(err, &commitErr) {
			slog.ErrorContext(ctx, "Settlement run failed, reported to result queue",
				"requested_by", msg.RequestedBy,
				"run_id", result.RunID,
				"error", err)
			return nil
		}
		return fmt.Errorf("settle: %w", err)
	}

	slog.InfoContext(ctx, "Settlement run finished",
		"requested_by", msg.RequestedBy,
		"run_id", result.RunID,
		"status", result.Status,
		"transfers", len(result.Transfers))

	return nil
}

// CheckOutstanding runs one settlement pass outside of any AMQP request.
// Called at startup and on a timer so debts left over from downtime still
// get settled.
func (w *SettleWorker) CheckOutstanding(ctx context.Context) error {
	result, err := w.settler.Settle(ctx)
	if err != nil {
		return fmt.Errorf("settle outstanding: %w", err)
	}

	if result.Status == amqp.StatusSettled {
		slog.InfoContext(ctx, "Settled outstanding debts",
			"run_id", result.RunID,
			"transfers", len(result.Transfers))
	}

	return nil
}
