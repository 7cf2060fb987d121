// Package settlement builds a per-currency net-obligation graph from unpaid
// debt shares, reduces it to a small set of settling transfers, maps each
// transfer back onto the concrete shares it discharges, and commits those
// mutations in one exclusive transaction.
package settlement

import (
	"context"

	"dolgi/internal/core"
)

// Ledger is the read side of the store the engine plans against.
type Ledger interface {
	// UnpaidDebtRecords returns every unpaid debt share joined with its
	// expense's payer and currency.
	UnpaidDebtRecords(ctx context.Context) ([]core.DebtRecord, error)

	// UnpaidDebtRecordsBetween returns unpaid shares owed by debtorID to
	// creditorID in the given currency, ordered by share id ascending.
	UnpaidDebtRecordsBetween(ctx context.Context, debtorID, creditorID int64, currency string) ([]core.DebtRecord, error)

	// BeginSettlement opens the exclusive write transaction used to apply
	// a plan. The transaction serializes against every other writer of
	// debt shares.
	BeginSettlement(ctx context.Context) (Tx, error)
}

// ShareState is the current persisted state of one debt share, re-read
// inside the commit transaction immediately before mutation.
type ShareState struct {
	AmountCents int64
	Paid        bool
	DebtorID    int64
}

// Tx is the exclusive settlement transaction. Either Commit applies every
// mutation or Rollback discards all of them; there is no partial outcome.
type Tx interface {
	// ShareState reads a share's current amount, paid flag, and debtor.
	// Returns ErrShareNotFound if the row no longer exists.
	ShareState(ctx context.Context, shareID int64) (ShareState, error)

	// MarkSharePaid sets the paid flag on a share in place.
	MarkSharePaid(ctx context.Context, shareID int64) error

	// SplitShare reduces a share to remainingCents and inserts a new
	// share on the same expense and debtor with consumedCents, already
	// marked paid. Total owed amount across both rows is conserved.
	SplitShare(ctx context.Context, shareID, expenseID, debtorID, remainingCents, consumedCents int64) error

	Commit() error
	Rollback() error
}
