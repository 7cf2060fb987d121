package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dolgi/internal/core"
	"dolgi/internal/settlement"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedParticipants(t *testing.T, repo *SQLiteRepository, names map[int64]string) {
	t.Helper()
	ctx := context.Background()
	for id, name := range names {
		if err := repo.GetOrCreateParticipant(ctx, core.Participant{ID: id, Name: name}); err != nil {
			t.Fatalf("create participant %d: %v", id, err)
		}
	}
}

func TestParticipantUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.GetOrCreateParticipant(ctx, core.Participant{ID: 1, Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	// Second interaction refreshes the name, identity stays.
	if err := repo.GetOrCreateParticipant(ctx, core.Participant{ID: 1, Name: "Alisa"}); err != nil {
		t.Fatal(err)
	}
	p, err := repo.GetParticipant(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Alisa" {
		t.Errorf("name = %q, want Alisa", p.Name)
	}

	if _, err := repo.GetParticipant(ctx, 404); !errors.Is(err, ErrParticipantNotFound) {
		t.Errorf("unknown participant: got %v", err)
	}
}

func TestSetPayoutDetails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedParticipants(t, repo, map[int64]string{1: "Alice"})

	if err := repo.SetPayoutDetails(ctx, 1, "card 1234"); err != nil {
		t.Fatal(err)
	}
	p, err := repo.GetParticipant(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Payout != "card 1234" {
		t.Errorf("payout = %q", p.Payout)
	}
	if err := repo.SetPayoutDetails(ctx, 404, "x"); !errors.Is(err, ErrParticipantNotFound) {
		t.Errorf("unknown participant: got %v", err)
	}
}

func TestAddDebtShareRejectsSelfDebt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedParticipants(t, repo, map[int64]string{1: "Alice"})

	expenseID, err := repo.CreateExpense(ctx, core.Expense{
		PayerID: 1, Amount: core.Money{Cents: 10000}, Currency: "RUB", Description: "dinner",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = repo.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: expenseID, DebtorID: 1, Amount: core.Money{Cents: 5000},
	})
	if !errors.Is(err, core.ErrSelfDebt) {
		t.Fatalf("got %v, want ErrSelfDebt", err)
	}

	_, err = repo.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: 404, DebtorID: 2, Amount: core.Money{Cents: 5000},
	})
	if !errors.Is(err, core.ErrUnknownExpense) {
		t.Fatalf("got %v, want ErrUnknownExpense", err)
	}
}

func TestUnpaidDebtRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedParticipants(t, repo, map[int64]string{1: "Alice", 2: "Bob"})

	expenseID, err := repo.CreateExpense(ctx, core.Expense{
		PayerID: 1, Amount: core.Money{Cents: 10000}, Currency: "RUB", Description: "groceries",
	})
	if err != nil {
		t.Fatal(err)
	}
	shareID, err := repo.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: expenseID, DebtorID: 2, Amount: core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := repo.UnpaidDebtRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.ShareID != shareID || rec.DebtorID != 2 || rec.CreditorID != 1 ||
		rec.AmountCents != 10000 || rec.Currency != "RUB" {
		t.Errorf("unexpected record %+v", rec)
	}

	between, err := repo.UnpaidDebtRecordsBetween(ctx, 2, 1, "RUB")
	if err != nil {
		t.Fatal(err)
	}
	if len(between) != 1 || between[0].ShareID != shareID {
		t.Errorf("between query: %+v", between)
	}

	none, err := repo.UnpaidDebtRecordsBetween(ctx, 1, 2, "RUB")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("reverse direction not empty: %+v", none)
	}
}

func TestSettlementTxSplitAndRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedParticipants(t, repo, map[int64]string{1: "Alice", 2: "Bob"})

	expenseID, err := repo.CreateExpense(ctx, core.Expense{
		PayerID: 1, Amount: core.Money{Cents: 10000}, Currency: "RUB", Description: "taxi",
	})
	if err != nil {
		t.Fatal(err)
	}
	shareID, err := repo.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: expenseID, DebtorID: 2, Amount: core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Rolled-back mutations leave no trace.
	tx, err := repo.BeginSettlement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.MarkSharePaid(ctx, shareID); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	records, err := repo.UnpaidDebtRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("rollback lost the share: %+v", records)
	}

	// Split conserves the total and keeps the remainder unpaid.
	tx, err = repo.BeginSettlement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.SplitShare(ctx, shareID, expenseID, 2, 7000, 3000); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	records, err = repo.UnpaidDebtRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].AmountCents != 7000 {
		t.Fatalf("unpaid remainder wrong: %+v", records)
	}
	totals, err := repo.UnpaidTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 1 || totals[0].AmountCents != 7000 || totals[0].ParticipantID != 2 {
		t.Fatalf("unpaid totals wrong: %+v", totals)
	}
}

// Full engine run against the real repository: plan, commit, verify the
// ledger reaches zero.
func TestEngineAgainstSQLite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedParticipants(t, repo, map[int64]string{1: "Alice", 2: "Bob"})

	expenseID, err := repo.CreateExpense(ctx, core.Expense{
		PayerID: 1, Amount: core.Money{Cents: 10000}, Currency: "rub", Description: "dinner",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: expenseID, DebtorID: 2, Amount: core.Money{Cents: 10000},
	}); err != nil {
		t.Fatal(err)
	}

	engine := settlement.NewEngine(repo, "")
	plan, err := engine.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Transfers) != 1 {
		t.Fatalf("got %d transfers, want 1", len(plan.Transfers))
	}
	if err := engine.Commit(ctx, plan); err != nil {
		t.Fatal(err)
	}

	records, err := repo.UnpaidDebtRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("ledger not settled: %+v", records)
	}

	again, err := engine.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Empty() {
		t.Fatalf("second run not empty: %+v", again.Transfers)
	}
}
