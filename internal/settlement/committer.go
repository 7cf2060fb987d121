package settlement

import (
	"context"
	"fmt"

	"dolgi/internal/core"
)

// amountTolerance is the permitted gap, in minor units, between a share's
// current amount and the amount an allocation consumes from it.
const amountTolerance = 1

// commit applies every allocation of the plan inside the given transaction.
// Each share is re-read immediately before mutation and validated against
// the plan; the first violation aborts with a CommitError and the caller
// rolls the whole transaction back.
func commit(ctx context.Context, tx Tx, plan *Plan) error {
	for _, pt := range plan.Transfers {
		for _, alloc := range pt.Allocations {
			if err := applyAllocation(ctx, tx, pt.Transfer, alloc); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyAllocation(ctx context.Context, tx Tx, t core.Transfer, alloc core.Allocation) error {
	state, err := tx.ShareState(ctx, alloc.ShareID)
	if err != nil {
		return &CommitError{Transfer: t, Allocation: alloc, Reason: err}
	}
	if state.Paid {
		return &CommitError{Transfer: t, Allocation: alloc, Reason: ErrShareAlreadyPaid}
	}
	if state.DebtorID != t.From {
		return &CommitError{Transfer: t, Allocation: alloc, Reason: ErrDebtorChanged}
	}
	if state.AmountCents+amountTolerance < alloc.AmountCents {
		return &CommitError{Transfer: t, Allocation: alloc,
			Reason: fmt.Errorf("%w: have %d, need %d", ErrInsufficientAmount, state.AmountCents, alloc.AmountCents)}
	}

	if alloc.AmountCents >= state.AmountCents {
		// Fully consumed (possibly within the rounding tolerance): the
		// row flips to paid in place.
		if err := tx.MarkSharePaid(ctx, alloc.ShareID); err != nil {
			return &CommitError{Transfer: t, Allocation: alloc, Reason: err}
		}
		return nil
	}

	// Partially consumed: the row keeps the remainder unpaid and the
	// consumed part becomes a new paid row on the same expense and
	// debtor. Total owed per original record is conserved.
	remaining := state.AmountCents - alloc.AmountCents
	if err := tx.SplitShare(ctx, alloc.ShareID, alloc.ExpenseID, state.DebtorID, remaining, alloc.AmountCents); err != nil {
		return &CommitError{Transfer: t, Allocation: alloc, Reason: err}
	}
	return nil
}
