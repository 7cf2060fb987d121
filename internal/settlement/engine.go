package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"dolgi/internal/core"
)

// PlannedTransfer is one settling payment together with the concrete debt
// shares it discharges.
type PlannedTransfer struct {
	Transfer    core.Transfer
	Allocations []core.Allocation
}

// Plan is the computed outcome of one settlement run, ready to be committed.
// It is re-validated record by record at commit time, so holding a plan
// across concurrent ledger writes is safe: a stale plan fails cleanly
// instead of corrupting state.
type Plan struct {
	RunID     string
	Transfers []PlannedTransfer
}

// Empty reports whether the plan contains no transfers, i.e. nothing is owed.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Transfers) == 0
}

// Engine runs settlement over a Ledger: build balances, solve transfers,
// map allocations, commit. Planning is pure computation over materialized
// reads; only Commit performs writes.
type Engine struct {
	ledger          Ledger
	defaultCurrency string
}

func NewEngine(ledger Ledger, defaultCurrency string) *Engine {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &Engine{ledger: ledger, defaultCurrency: defaultCurrency}
}

// Plan computes the settling transfers for everything currently owed and
// maps each one onto the unpaid shares it discharges. An empty plan means
// no outstanding debt. Errors are fatal for the run; nothing is written.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	records, err := e.ledger.UnpaidDebtRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("read unpaid debt records: %w", err)
	}

	balances, err := NetBalances(records, e.defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("build debt graph: %w", err)
	}

	var transfers []core.Transfer
	for _, cur := range Currencies(balances) {
		transfers = append(transfers, Solve(balances[cur], cur)...)
	}
	transfers = aggregateTransfers(transfers)

	plan := &Plan{RunID: uuid.New().String()}
	for _, t := range transfers {
		allocs, err := allocate(ctx, e.ledger, t)
		if err != nil {
			return nil, err
		}
		plan.Transfers = append(plan.Transfers, PlannedTransfer{Transfer: t, Allocations: allocs})
	}

	slog.DebugContext(ctx, "Settlement plan computed",
		"run_id", plan.RunID,
		"records", len(records),
		"transfers", len(plan.Transfers))
	return plan, nil
}

// Commit applies a previously computed plan inside one exclusive write
// transaction spanning all currencies in the run. Every share is re-read
// and validated immediately before mutation; any violation rolls the whole
// transaction back and surfaces a single CommitError. Commit never retries.
func (e *Engine) Commit(ctx context.Context, plan *Plan) error {
	if plan.Empty() {
		return nil
	}

	tx, err := e.ledger.BeginSettlement(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement transaction: %w", err)
	}

	if err := commit(ctx, tx, plan); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Settlement rollback failed", "run_id", plan.RunID, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement transaction: %w", err)
	}

	slog.InfoContext(ctx, "Settlement committed",
		"run_id", plan.RunID,
		"transfers", len(plan.Transfers))
	return nil
}
