package settlement

import (
	"reflect"
	"testing"

	"dolgi/internal/core"
)

func TestSolveSimplePair(t *testing.T) {
	balances := map[int64]int64{1: 10000, 2: -10000}
	got := Solve(balances, "RUB")
	want := []core.Transfer{{From: 2, To: 1, Amount: core.Money{Cents: 10000}, Currency: "RUB"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSolveTransitiveNetting(t *testing.T) {
	// A(1) paid 200 split across B and C; B(2) paid 90 owed by C(3).
	// Nets: A=+200.00, B=-10.00, C=-190.00.
	balances := map[int64]int64{1: 20000, 2: -1000, 3: -19000}
	got := Solve(balances, "RUB")
	want := []core.Transfer{
		{From: 2, To: 1, Amount: core.Money{Cents: 1000}, Currency: "RUB"},
		{From: 3, To: 1, Amount: core.Money{Cents: 19000}, Currency: "RUB"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSolveCycleProducesNoTransfers(t *testing.T) {
	// A->B, B->C, C->A with equal amounts nets every balance to zero.
	records := []core.DebtRecord{
		{ShareID: 1, DebtorID: 1, CreditorID: 2, AmountCents: 5000, Currency: "RUB"},
		{ShareID: 2, DebtorID: 2, CreditorID: 3, AmountCents: 5000, Currency: "RUB"},
		{ShareID: 3, DebtorID: 3, CreditorID: 1, AmountCents: 5000, Currency: "RUB"},
	}
	balances, err := NetBalances(records, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := Solve(balances["RUB"], "RUB"); len(got) != 0 {
		t.Fatalf("cycle yielded transfers: %v", got)
	}
}

func TestSolveNoSelfOrNonPositiveTransfers(t *testing.T) {
	balances := map[int64]int64{1: 300, 2: -100, 3: -200, 4: 0, 5: 0}
	for _, tr := range Solve(balances, "RUB") {
		if tr.From == tr.To {
			t.Errorf("self transfer emitted: %v", tr)
		}
		if tr.Amount.Cents <= 0 {
			t.Errorf("non-positive transfer emitted: %v", tr)
		}
	}
}

func TestSolveBoundsTransferCount(t *testing.T) {
	balances := map[int64]int64{1: 100, 2: 200, 3: 300, 4: -150, 5: -250, 6: -200}
	transfers := Solve(balances, "RUB")
	if len(transfers) > len(balances)-1 {
		t.Fatalf("emitted %d transfers for %d participants", len(transfers), len(balances))
	}

	// Applying every transfer must return each balance to exactly zero.
	remaining := make(map[int64]int64, len(balances))
	for id, net := range balances {
		remaining[id] = net
	}
	for _, tr := range transfers {
		remaining[tr.From] += tr.Amount.Cents
		remaining[tr.To] -= tr.Amount.Cents
	}
	for id, net := range remaining {
		if net != 0 {
			t.Errorf("participant %d left with balance %d", id, net)
		}
	}
}

func TestSolveDeterministicOrdering(t *testing.T) {
	balances := map[int64]int64{7: -100, 3: -100, 9: 150, 5: 50}
	first := Solve(balances, "RUB")
	for i := 0; i < 10; i++ {
		if got := Solve(balances, "RUB"); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
	// Debtors and creditors are consumed in ascending id order.
	if first[0].From != 3 || first[0].To != 5 {
		t.Errorf("first transfer %v, want 3->5", first[0])
	}
}

func TestAggregateTransfers(t *testing.T) {
	in := []core.Transfer{
		{From: 2, To: 1, Amount: core.Money{Cents: 100}, Currency: "RUB"},
		{From: 2, To: 1, Amount: core.Money{Cents: 50}, Currency: "RUB"},
		{From: 2, To: 1, Amount: core.Money{Cents: 70}, Currency: "USD"},
	}
	got := aggregateTransfers(in)
	if len(got) != 2 {
		t.Fatalf("got %d transfers, want 2: %v", len(got), got)
	}
	if got[0].Amount.Cents != 150 || got[0].Currency != "RUB" {
		t.Errorf("aggregate RUB transfer wrong: %v", got[0])
	}
	if got[1].Amount.Cents != 70 || got[1].Currency != "USD" {
		t.Errorf("USD transfer wrong: %v", got[1])
	}
}
