package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dolgi/internal/amqp"
	"dolgi/internal/cache"
	"dolgi/internal/core"
	"dolgi/internal/settlement"
	"dolgi/internal/storage"
)

const balancesCacheKey = "balances"

// LedgerService orchestrates ledger writes and read views across SQLite,
// the balance cache and AMQP.
type LedgerService struct {
	storage         *storage.SQLiteRepository
	amqpClient      *amqp.Client
	balances        *cache.LRUCache[[]core.Balance]
	defaultCurrency string
	historyLimit    int
}

func NewLedgerService(
	storage *storage.SQLiteRepository,
	amqpClient *amqp.Client,
	balances *cache.LRUCache[[]core.Balance],
	defaultCurrency string,
	historyLimit int,
) *LedgerService {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &LedgerService{
		storage:         storage,
		amqpClient:      amqpClient,
		balances:        balances,
		defaultCurrency: defaultCurrency,
		historyLimit:    historyLimit,
	}
}

// RecordExpense registers the payer and stores a new expense. The amount
// arrives as free text ("12.34", "12,34") and is parsed into minor units.
func (s *LedgerService) RecordExpense(ctx context.Context, payer core.Participant, amountText, currency, description, category string) (int64, error) {
	cents, err := core.ParseDecimalToCents(amountText)
	if err != nil {
		return 0, fmt.Errorf("parse amount: %w", err)
	}

	if err := s.storage.GetOrCreateParticipant(ctx, payer); err != nil {
		return 0, fmt.Errorf("upsert payer: %w", err)
	}

	id, err := s.storage.CreateExpense(ctx, core.Expense{
		PayerID:     payer.ID,
		Amount:      core.Money{Cents: cents},
		Currency:    core.NormalizeCurrency(currency, s.defaultCurrency),
		Description: description,
		Category:    category,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.invalidateViews()
	return id, nil
}

// AddShare registers the debtor and stores their owed portion of an expense.
func (s *LedgerService) AddShare(ctx context.Context, expenseID int64, debtor core.Participant, amountText string) (int64, error) {
	cents, err := core.ParseDecimalToCents(amountText)
	if err != nil {
		return 0, fmt.Errorf("parse amount: %w", err)
	}

	if err := s.storage.GetOrCreateParticipant(ctx, debtor); err != nil {
		return 0, fmt.Errorf("upsert debtor: %w", err)
	}

	id, err := s.storage.AddDebtShare(ctx, core.DebtShare{
		ExpenseID: expenseID,
		DebtorID:  debtor.ID,
		Amount:    core.Money{Cents: cents},
	})
	if err != nil {
		return 0, fmt.Errorf("save debt share: %w", err)
	}

	s.invalidateViews()
	return id, nil
}

// Balances returns every participant's signed net position per currency,
// sorted by currency then participant. Served from cache when fresh.
func (s *LedgerService) Balances(ctx context.Context) ([]core.Balance, error) {
	if s.balances != nil {
		if cached, ok := s.balances.Get(balancesCacheKey); ok {
			return cached, nil
		}
	}

	records, err := s.storage.UnpaidDebtRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unpaid records: %w", err)
	}

	byCurrency, err := settlement.NetBalances(records, s.defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("aggregate balances: %w", err)
	}

	result := make([]core.Balance, 0)
	for _, currency := range settlement.Currencies(byCurrency) {
		byUser := byCurrency[currency]
		ids := make([]int64, 0, len(byUser))
		for id := range byUser {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if byUser[id] == 0 {
				continue
			}
			result = append(result, core.Balance{
				ParticipantID: id,
				Currency:      currency,
				NetCents:      byUser[id],
			})
		}
	}

	if s.balances != nil {
		s.balances.Set(balancesCacheKey, result)
	}
	return result, nil
}

// DebtsFor lists a debtor's unpaid shares, oldest first.
func (s *LedgerService) DebtsFor(ctx context.Context, debtorID int64) ([]storage.DebtorDebt, error) {
	return s.storage.UnpaidDebtsByDebtor(ctx, debtorID)
}

// OwedTotals sums every participant's unpaid debt per currency.
func (s *LedgerService) OwedTotals(ctx context.Context) ([]storage.OwedTotal, error) {
	return s.storage.UnpaidTotals(ctx)
}

// History lists recent expenses with payer names, newest first.
func (s *LedgerService) History(ctx context.Context, limit int) ([]storage.ExpenseWithPayer, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.storage.ListExpenses(ctx, limit)
}

// RegisterParticipant upserts a group member, refreshing the stored name.
func (s *LedgerService) RegisterParticipant(ctx context.Context, p core.Participant) error {
	return s.storage.GetOrCreateParticipant(ctx, p)
}

// Participants lists every known group member.
func (s *LedgerService) Participants(ctx context.Context) ([]core.Participant, error) {
	return s.storage.ListParticipants(ctx)
}

// Participant returns one group member by id.
func (s *LedgerService) Participant(ctx context.Context, id int64) (core.Participant, error) {
	return s.storage.GetParticipant(ctx, id)
}

// SetPayoutDetails stores a participant's settlement credentials.
func (s *LedgerService) SetPayoutDetails(ctx context.Context, id int64, payout string) error {
	return s.storage.SetPayoutDetails(ctx, id, payout)
}

// RequestSettlement publishes an async settlement request for the worker.
func (s *LedgerService) RequestSettlement(ctx context.Context, requestedBy int64) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping settlement request")
		return nil
	}
	return s.amqpClient.PublishSettlementRequest(ctx, requestedBy)
}

func (s *LedgerService) invalidateViews() {
	if s.balances != nil {
		s.balances.Purge()
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
