// Package storage persists the shared-expense ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dolgi/internal/core"
	"dolgi/internal/settlement"

	_ "modernc.org/sqlite"
)

// ErrParticipantNotFound is returned for point reads of unknown participants.
var ErrParticipantNotFound = errors.New("participant not found")

// ExpenseWithPayer is an expense joined with its payer's display name, for
// history views.
type ExpenseWithPayer struct {
	core.Expense
	PayerName string
}

// DebtorDebt is one unpaid share from the debtor's point of view.
type DebtorDebt struct {
	ShareID     int64
	ExpenseID   int64
	Description string
	AmountCents int64
	Currency    string
}

// OwedTotal is a participant's summed unpaid debt in one currency.
type OwedTotal struct {
	ParticipantID int64
	Name          string
	Currency      string
	AmountCents   int64
}

// Ensure the repository satisfies the settlement engine's store contract.
var _ settlement.Ledger = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _txlock=immediate makes every write transaction take the database
	// lock up front, so settlement commits serialize against all other
	// writers instead of failing mid-transaction on lock upgrade.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection, used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetOrCreateParticipant inserts the participant on first interaction and
// refreshes the display name on subsequent ones. Identity is immutable.
func (r *SQLiteRepository) GetOrCreateParticipant(ctx context.Context, p core.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participant (id, name, payout_details) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		p.ID, p.Name, p.Payout)
	if err != nil {
		return fmt.Errorf("upsert participant %d: %w", p.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetParticipant(ctx context.Context, id int64) (core.Participant, error) {
	var p core.Participant
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, payout_details FROM participant WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Payout)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return core.Participant{}, fmt.Errorf("get participant %d: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListParticipants(ctx context.Context) ([]core.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, payout_details FROM participant ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		var p core.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Payout); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPayoutDetails stores a participant's settlement credentials.
func (r *SQLiteRepository) SetPayoutDetails(ctx context.Context, id int64, payout string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE participant SET payout_details = ? WHERE id = ?", payout, id)
	if err != nil {
		return fmt.Errorf("set payout details for %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set payout details for %d: %w", id, err)
	}
	if n == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// CreateExpense records a payment. Expenses are immutable afterwards.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expense (payer_id, amount_cents, currency, description, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.PayerID, e.Amount.Cents, e.Currency, e.Description, e.Category, e.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"payer_id", e.PayerID,
		"amount_cents", e.Amount.Cents,
		"currency", e.Currency,
		"description", e.Description)
	return id, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	var e core.Expense
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, payer_id, amount_cents, currency, description, category, created_at
		FROM expense WHERE id = ?`, id,
	).Scan(&e.ID, &e.PayerID, &e.Amount.Cents, &e.Currency, &e.Description, &e.Category, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrUnknownExpense
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	return e, nil
}

// ListExpenses returns the most recent expenses with payer names, newest
// first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, limit int) ([]ExpenseWithPayer, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.payer_id, e.amount_cents, e.currency, e.description, e.category, e.created_at, p.name
		FROM expense e
		JOIN participant p ON e.payer_id = p.id
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []ExpenseWithPayer
	for rows.Next() {
		var e ExpenseWithPayer
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.PayerID, &e.Amount.Cents, &e.Currency,
			&e.Description, &e.Category, &createdAt, &e.PayerName); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddDebtShare registers a participant's share of an expense. Self-debt
// (debtor paying their own expense) is invalid.
func (r *SQLiteRepository) AddDebtShare(ctx context.Context, s core.DebtShare) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	expense, err := r.GetExpense(ctx, s.ExpenseID)
	if err != nil {
		return 0, err
	}
	if expense.PayerID == s.DebtorID {
		return 0, core.ErrSelfDebt
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO debt_share (expense_id, debtor_id, amount_cents, is_paid)
		VALUES (?, ?, ?, 0)`,
		s.ExpenseID, s.DebtorID, s.Amount.Cents)
	if err != nil {
		return 0, fmt.Errorf("insert debt share: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("debt share id: %w", err)
	}

	slog.InfoContext(ctx, "Debt share saved",
		"id", id,
		"expense_id", s.ExpenseID,
		"debtor_id", s.DebtorID,
		"amount_cents", s.Amount.Cents)
	return id, nil
}

// UnpaidDebtRecords implements settlement.Ledger: every unpaid share joined
// with its expense's payer and currency.
func (r *SQLiteRepository) UnpaidDebtRecords(ctx context.Context) ([]core.DebtRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ds.id, ds.expense_id, ds.debtor_id, e.payer_id, ds.amount_cents, e.currency
		FROM debt_share ds
		JOIN expense e ON ds.expense_id = e.id
		WHERE ds.is_paid = 0
		ORDER BY ds.id`)
	if err != nil {
		return nil, fmt.Errorf("query unpaid debt records: %w", err)
	}
	defer rows.Close()
	return scanDebtRecords(rows)
}

// UnpaidDebtRecordsBetween implements settlement.Ledger: direct unpaid
// shares from debtor to creditor in one currency, oldest first.
func (r *SQLiteRepository) UnpaidDebtRecordsBetween(ctx context.Context, debtorID, creditorID int64, currency string) ([]core.DebtRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ds.id, ds.expense_id, ds.debtor_id, e.payer_id, ds.amount_cents, e.currency
		FROM debt_share ds
		JOIN expense e ON ds.expense_id = e.id
		WHERE ds.is_paid = 0
		  AND ds.debtor_id = ?
		  AND e.payer_id = ?
		  AND UPPER(TRIM(e.currency)) = ?
		ORDER BY ds.id`,
		debtorID, creditorID, currency)
	if err != nil {
		return nil, fmt.Errorf("query unpaid debt records %d->%d %s: %w", debtorID, creditorID, currency, err)
	}
	defer rows.Close()
	return scanDebtRecords(rows)
}

func scanDebtRecords(rows *sql.Rows) ([]core.DebtRecord, error) {
	var out []core.DebtRecord
	for rows.Next() {
		var rec core.DebtRecord
		if err := rows.Scan(&rec.ShareID, &rec.ExpenseID, &rec.DebtorID,
			&rec.CreditorID, &rec.AmountCents, &rec.Currency); err != nil {
			return nil, fmt.Errorf("scan debt record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UnpaidDebtsByDebtor lists one participant's outstanding shares with the
// expense descriptions, for the "my debt" view.
func (r *SQLiteRepository) UnpaidDebtsByDebtor(ctx context.Context, debtorID int64) ([]DebtorDebt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ds.id, ds.expense_id, e.description, ds.amount_cents, e.currency
		FROM debt_share ds
		JOIN expense e ON ds.expense_id = e.id
		WHERE ds.is_paid = 0 AND ds.debtor_id = ?
		ORDER BY ds.id`, debtorID)
	if err != nil {
		return nil, fmt.Errorf("query debts for %d: %w", debtorID, err)
	}
	defer rows.Close()

	var out []DebtorDebt
	for rows.Next() {
		var d DebtorDebt
		if err := rows.Scan(&d.ShareID, &d.ExpenseID, &d.Description, &d.AmountCents, &d.Currency); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UnpaidTotals sums outstanding debt per participant and currency, for the
// group-wide debt overview.
func (r *SQLiteRepository) UnpaidTotals(ctx context.Context) ([]OwedTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, e.currency, SUM(ds.amount_cents)
		FROM debt_share ds
		JOIN participant p ON ds.debtor_id = p.id
		JOIN expense e ON ds.expense_id = e.id
		WHERE ds.is_paid = 0
		GROUP BY p.id, p.name, e.currency
		ORDER BY p.id, e.currency`)
	if err != nil {
		return nil, fmt.Errorf("query unpaid totals: %w", err)
	}
	defer rows.Close()

	var out []OwedTotal
	for rows.Next() {
		var t OwedTotal
		if err := rows.Scan(&t.ParticipantID, &t.Name, &t.Currency, &t.AmountCents); err != nil {
			return nil, fmt.Errorf("scan unpaid total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// BeginSettlement implements settlement.Ledger by opening the exclusive
// write transaction a settlement commit runs in.
func (r *SQLiteRepository) BeginSettlement(ctx context.Context) (settlement.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &settlementTx{tx: tx}, nil
}

type settlementTx struct {
	tx *sql.Tx
}

func (t *settlementTx) ShareState(ctx context.Context, shareID int64) (settlement.ShareState, error) {
	var state settlement.ShareState
	var paid int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT amount_cents, is_paid, debtor_id FROM debt_share WHERE id = ?", shareID,
	).Scan(&state.AmountCents, &paid, &state.DebtorID)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.ShareState{}, settlement.ErrShareNotFound
	}
	if err != nil {
		return settlement.ShareState{}, fmt.Errorf("read share %d: %w", shareID, err)
	}
	state.Paid = paid != 0
	return state, nil
}

func (t *settlementTx) MarkSharePaid(ctx context.Context, shareID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"UPDATE debt_share SET is_paid = 1 WHERE id = ?", shareID); err != nil {
		return fmt.Errorf("mark share %d paid: %w", shareID, err)
	}
	return nil
}

func (t *settlementTx) SplitShare(ctx context.Context, shareID, expenseID, debtorID, remainingCents, consumedCents int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"UPDATE debt_share SET amount_cents = ? WHERE id = ?", remainingCents, shareID); err != nil {
		return fmt.Errorf("reduce share %d: %w", shareID, err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO debt_share (expense_id, debtor_id, amount_cents, is_paid)
		VALUES (?, ?, ?, 1)`,
		expenseID, debtorID, consumedCents); err != nil {
		return fmt.Errorf("insert paid part of share %d: %w", shareID, err)
	}
	return nil
}

func (t *settlementTx) Commit() error   { return t.tx.Commit() }
func (t *settlementTx) Rollback() error { return t.tx.Rollback() }
