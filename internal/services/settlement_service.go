package services

import (
	"context"
	"fmt"
	"log/slog"

	"dolgi/internal/amqp"
	"dolgi/internal/settlement"
)

// SettlementService runs the settlement engine and reports outcomes over
// AMQP. Planning and committing stay available separately for the
// synchronous API; Settle chains them for the worker.
type SettlementService struct {
	engine     *settlement.Engine
	amqpClient *amqp.Client
	invalidate func()
}

func NewSettlementService(engine *settlement.Engine, amqpClient *amqp.Client, invalidate func()) *SettlementService {
	return &SettlementService{
		engine:     engine,
		amqpClient: amqpClient,
		invalidate: invalidate,
	}
}

// PlanSettlement computes a settlement plan without touching the ledger.
func (s *SettlementService) PlanSettlement(ctx context.Context) (*settlement.Plan, error) {
	return s.engine.Plan(ctx)
}

// CommitSettlement applies a previously computed plan.
func (s *SettlementService) CommitSettlement(ctx context.Context, plan *settlement.Plan) error {
	if err := s.engine.Commit(ctx, plan); err != nil {
		return err
	}
	if s.invalidate != nil {
		s.invalidate()
	}
	return nil
}

// Settle runs one full plan-and-commit pass and publishes the outcome.
// The returned message mirrors what was published.
func (s *SettlementService) Settle(ctx context.Context) (*amqp.SettlementResultMessage, error) {
	plan, err := s.engine.Plan(ctx)
	if err != nil {
		result := amqp.NewSettlementResultMessage("", amqp.StatusFailed)
		result.Error = err.Error()
		s.publishResult(ctx, result)
		return result, fmt.Errorf("plan settlement: %w", err)
	}

	if plan.Empty() {
		result := amqp.NewSettlementResultMessage(plan.RunID, amqp.StatusNothingToSettle)
		s.publishResult(ctx, result)
		return result, nil
	}

	if err := s.CommitSettlement(ctx, plan); err != nil {
		result := amqp.NewSettlementResultMessage(plan.RunID, amqp.StatusFailed)
		result.Error = err.Error()
		s.publishResult(ctx, result)
		return result, fmt.Errorf("commit settlement: %w", err)
	}

	result := amqp.NewSettlementResultMessage(plan.RunID, amqp.StatusSettled)
	result.Transfers = make([]amqp.TransferPayload, 0, len(plan.Transfers))
	for _, pt := range plan.Transfers {
		result.Transfers = append(result.Transfers, amqp.TransferPayload{
			From:        pt.Transfer.From,
			To:          pt.Transfer.To,
			AmountCents: pt.Transfer.Amount.Cents,
			Currency:    pt.Transfer.Currency,
		})
	}
	s.publishResult(ctx, result)

	return result, nil
}

func (s *SettlementService) publishResult(ctx context.Context, msg *amqp.SettlementResultMessage) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping settlement result")
		return
	}
	if err := s.amqpClient.PublishSettlementResult(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish settlement result",
			"run_id", msg.RunID,
			"status", msg.Status,
			"error", err)
	}
}
