package settlement

import (
	"context"
	"fmt"

	"dolgi/internal/core"
)

// aggregateTransfers folds transfers that coincide on the same ordered
// (from, to, currency) triple into one, preserving first-seen order.
func aggregateTransfers(transfers []core.Transfer) []core.Transfer {
	type key struct {
		from, to int64
		currency string
	}
	index := make(map[key]int)
	var out []core.Transfer
	for _, t := range transfers {
		k := key{t.From, t.To, t.Currency}
		if i, ok := index[k]; ok {
			out[i].Amount.Cents += t.Amount.Cents
			continue
		}
		index[k] = len(out)
		out = append(out, t)
	}
	return out
}

// allocate maps one aggregate transfer onto the concrete unpaid debt shares
// between the same debtor and creditor, consuming them oldest-first (share
// id ascending) for auditability.
//
// If the records run out while part of the transfer is uncovered, the run
// has hit the structural mismatch between net-balance solving and direct
// record consumption; that is a fatal InconsistencyError, never a partial
// or fabricated allocation.
func allocate(ctx context.Context, ledger Ledger, t core.Transfer) ([]core.Allocation, error) {
	records, err := ledger.UnpaidDebtRecordsBetween(ctx, t.From, t.To, t.Currency)
	if err != nil {
		return nil, fmt.Errorf("read unpaid records %d->%d %s: %w", t.From, t.To, t.Currency, err)
	}

	remaining := t.Amount.Cents
	var allocs []core.Allocation
	for _, rec := range records {
		if remaining <= 0 {
			break
		}
		take := rec.AmountCents
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		allocs = append(allocs, core.Allocation{
			ShareID:          rec.ShareID,
			ExpenseID:        rec.ExpenseID,
			AmountCents:      take,
			ShareAmountCents: rec.AmountCents,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, &InconsistencyError{Transfer: t, RemainingCents: remaining}
	}
	return allocs, nil
}
