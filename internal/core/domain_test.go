package core

import (
	"errors"
	"testing"
)

func TestExpenseValidate(t *testing.T) {
	valid := Expense{
		PayerID:     42,
		Amount:      Money{Cents: 10000},
		Currency:    "RUB",
		Description: "dinner",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid expense rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Expense)
		wantErr error
	}{
		{"missing payer", func(e *Expense) { e.PayerID = 0 }, nil},
		{"zero amount", func(e *Expense) { e.Amount.Cents = 0 }, ErrInvalidAmount},
		{"negative amount", func(e *Expense) { e.Amount.Cents = -100 }, ErrInvalidAmount},
		{"empty description", func(e *Expense) { e.Description = "  " }, ErrEmptyDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDebtShareValidate(t *testing.T) {
	valid := DebtShare{ExpenseID: 1, DebtorID: 7, Amount: Money{Cents: 9000}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid share rejected: %v", err)
	}

	if err := (DebtShare{DebtorID: 7, Amount: Money{Cents: 1}}).Validate(); !errors.Is(err, ErrUnknownExpense) {
		t.Errorf("missing expense id: got %v", err)
	}
	if err := (DebtShare{ExpenseID: 1, DebtorID: 7}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	cases := []struct {
		code, fallback, want string
	}{
		{"rub", "", "RUB"},
		{" usd ", "", "USD"},
		{"", "", "RUB"},
		{"  ", "", "RUB"},
		{"", "EUR", "EUR"},
		{"GEL", "EUR", "GEL"},
	}
	for _, tc := range cases {
		if got := NormalizeCurrency(tc.code, tc.fallback); got != tc.want {
			t.Errorf("NormalizeCurrency(%q, %q) = %q, want %q", tc.code, tc.fallback, got, tc.want)
		}
	}
}
