package settlement

import (
	"errors"
	"fmt"

	"dolgi/internal/core"
)

var (
	// ErrShareNotFound is reported when a planned share vanished before
	// commit.
	ErrShareNotFound = errors.New("debt share not found")

	// ErrShareAlreadyPaid is reported when a planned share was settled by
	// a concurrent run between planning and commit.
	ErrShareAlreadyPaid = errors.New("debt share already paid")

	// ErrInsufficientAmount is reported when a share's current amount no
	// longer covers the allocation planned against it.
	ErrInsufficientAmount = errors.New("debt share amount below planned allocation")

	// ErrDebtorChanged is reported when a share's debtor identity differs
	// from the one the plan was computed for.
	ErrDebtorChanged = errors.New("debt share debtor changed")
)

// MalformedAmountError marks a debt share whose stored amount cannot enter
// the settlement graph.
type MalformedAmountError struct {
	ShareID     int64
	AmountCents int64
}

func (e *MalformedAmountError) Error() string {
	return fmt.Sprintf("debt share %d has malformed amount %d", e.ShareID, e.AmountCents)
}

// InconsistencyError is the fatal fault raised when the solver produced a
// transfer that the ledger has no matching direct debt records for. Net
// balances are computed transitively across the whole currency graph, so a
// solved transfer between two participants who never directly transacted has
// nothing to allocate against. The run must fail rather than fabricate or
// misattribute an allocation.
type InconsistencyError struct {
	Transfer       core.Transfer
	RemainingCents int64
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("no unpaid debt records cover %s %s of transfer %d->%d",
		core.FormatCents(e.RemainingCents), e.Transfer.Currency, e.Transfer.From, e.Transfer.To)
}

// CommitError describes the single allocation whose revalidation failed and
// aborted the whole run.
type CommitError struct {
	Transfer   core.Transfer
	Allocation core.Allocation
	Reason     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit transfer %d->%d %s %s: share %d: %v",
		e.Transfer.From, e.Transfer.To, e.Transfer.Amount, e.Transfer.Currency,
		e.Allocation.ShareID, e.Reason)
}

func (e *CommitError) Unwrap() error { return e.Reason }
