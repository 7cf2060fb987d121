package settlement

import (
	"errors"
	"testing"

	"dolgi/internal/core"
)

func TestNetBalancesAggregation(t *testing.T) {
	records := []core.DebtRecord{
		{ShareID: 1, ExpenseID: 1, DebtorID: 2, CreditorID: 1, AmountCents: 10000, Currency: "RUB"},
		{ShareID: 2, ExpenseID: 1, DebtorID: 3, CreditorID: 1, AmountCents: 10000, Currency: "rub"},
		{ShareID: 3, ExpenseID: 2, DebtorID: 3, CreditorID: 2, AmountCents: 9000, Currency: " RUB "},
		{ShareID: 4, ExpenseID: 3, DebtorID: 2, CreditorID: 1, AmountCents: 500, Currency: "USD"},
	}
	balances, err := NetBalances(records, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 currencies, got %d (%v)", len(balances), balances)
	}

	rub := balances["RUB"]
	if rub[1] != 20000 || rub[2] != -1000 || rub[3] != -19000 {
		t.Errorf("RUB balances wrong: %v", rub)
	}
	usd := balances["USD"]
	if usd[1] != 500 || usd[2] != -500 {
		t.Errorf("USD balances wrong: %v", usd)
	}
}

func TestNetBalancesZeroSum(t *testing.T) {
	records := []core.DebtRecord{
		{ShareID: 1, DebtorID: 2, CreditorID: 1, AmountCents: 12345, Currency: "RUB"},
		{ShareID: 2, DebtorID: 3, CreditorID: 2, AmountCents: 777, Currency: "RUB"},
		{ShareID: 3, DebtorID: 1, CreditorID: 3, AmountCents: 1, Currency: "RUB"},
		{ShareID: 4, DebtorID: 5, CreditorID: 4, AmountCents: 99, Currency: "EUR"},
	}
	balances, err := NetBalances(records, "")
	if err != nil {
		t.Fatal(err)
	}
	for cur, byUser := range balances {
		var sum int64
		for _, net := range byUser {
			sum += net
		}
		if sum != 0 {
			t.Errorf("currency %s balances sum to %d, want 0", cur, sum)
		}
	}
}

func TestNetBalancesDefaultsEmptyCurrency(t *testing.T) {
	records := []core.DebtRecord{
		{ShareID: 1, DebtorID: 2, CreditorID: 1, AmountCents: 100, Currency: ""},
		{ShareID: 2, DebtorID: 2, CreditorID: 1, AmountCents: 100, Currency: "  "},
	}
	balances, err := NetBalances(records, "")
	if err != nil {
		t.Fatal(err)
	}
	if balances["RUB"][1] != 200 {
		t.Errorf("empty currency not folded into default: %v", balances)
	}
}

func TestNetBalancesIgnoresSelfDebt(t *testing.T) {
	records := []core.DebtRecord{
		{ShareID: 1, DebtorID: 1, CreditorID: 1, AmountCents: 5000, Currency: "RUB"},
	}
	balances, err := NetBalances(records, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 0 {
		t.Errorf("self-debt produced balances: %v", balances)
	}
}

func TestNetBalancesSkipsZeroAndRejectsNegative(t *testing.T) {
	zero := []core.DebtRecord{{ShareID: 1, DebtorID: 2, CreditorID: 1, AmountCents: 0, Currency: "RUB"}}
	balances, err := NetBalances(zero, "")
	if err != nil || len(balances) != 0 {
		t.Errorf("zero amount: balances=%v err=%v", balances, err)
	}

	neg := []core.DebtRecord{{ShareID: 9, DebtorID: 2, CreditorID: 1, AmountCents: -100, Currency: "RUB"}}
	_, err = NetBalances(neg, "")
	var malformed *MalformedAmountError
	if !errors.As(err, &malformed) {
		t.Fatalf("negative amount: got %v, want MalformedAmountError", err)
	}
	if malformed.ShareID != 9 {
		t.Errorf("error names share %d, want 9", malformed.ShareID)
	}
}

func TestNetBalancesEmptyInput(t *testing.T) {
	balances, err := NetBalances(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 0 {
		t.Errorf("empty input yielded currencies: %v", balances)
	}
}
