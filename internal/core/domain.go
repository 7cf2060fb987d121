package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	// Participant is a member of the group. Created on first interaction,
	// never deleted. Payout holds optional settlement credentials
	// (card number, phone, payment link) as free text.
	Participant struct {
		ID     int64
		Name   string
		Payout string
	}

	// Expense is a payment made by one participant on behalf of the group.
	// Immutable once recorded; the settlement engine never touches it.
	Expense struct {
		ID          int64
		PayerID     int64
		Amount      Money
		Currency    string
		Description string
		Category    string
		CreatedAt   time.Time
	}

	// DebtShare is one debtor's owed portion of an Expense. Currency is
	// inherited from the expense. Only the settlement engine mutates
	// shares: amount reduced, row split, or paid flag set.
	DebtShare struct {
		ID        int64
		ExpenseID int64
		DebtorID  int64
		Amount    Money
		Paid      bool
	}

	// DebtRecord is an unpaid share joined with its expense's payer and
	// currency, the raw input of the settlement engine.
	DebtRecord struct {
		ShareID     int64
		ExpenseID   int64
		DebtorID    int64
		CreditorID  int64
		AmountCents int64
		Currency    string
	}

	// Transfer is a proposed settlement payment: From pays To Amount in
	// Currency. Derived, never persisted.
	Transfer struct {
		From     int64
		To       int64
		Amount   Money
		Currency string
	}

	// Allocation maps part of a Transfer onto one concrete debt share.
	// ShareAmountCents is the share's amount at planning time, kept for
	// auditability and commit-time revalidation.
	Allocation struct {
		ShareID          int64
		ExpenseID        int64
		AmountCents      int64
		ShareAmountCents int64
	}

	// Balance is a participant's signed net position in one currency:
	// positive means the group owes them, negative means they owe.
	Balance struct {
		ParticipantID int64
		Currency      string
		NetCents      int64
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrSelfDebt         = errors.New("debtor and payer are the same participant")
	ErrUnknownExpense   = errors.New("unknown expense")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p Participant) Validate() error {
	if p.ID == 0 {
		return errors.New("participant id required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (e Expense) Validate() error {
	if e.PayerID == 0 {
		return errors.New("payer id required")
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return e.Amount.Validate()
}

func (s DebtShare) Validate() error {
	if s.ExpenseID == 0 {
		return ErrUnknownExpense
	}
	if s.DebtorID == 0 {
		return errors.New("debtor id required")
	}
	return s.Amount.Validate()
}
