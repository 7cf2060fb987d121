package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dolgi/internal/core"
	"dolgi/internal/settlement"
	"dolgi/internal/storage"
)

type fakeLedger struct {
	participants map[int64]core.Participant
	balances     []core.Balance
	debts        []storage.DebtorDebt
	history      []storage.ExpenseWithPayer
	nextExpense  int64
	nextShare    int64
	requested    []int64

	recordErr error
	shareErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{participants: make(map[int64]core.Participant)}
}

func (f *fakeLedger) RegisterParticipant(ctx context.Context, p core.Participant) error {
	f.participants[p.ID] = p
	return nil
}

func (f *fakeLedger) Participants(ctx context.Context) ([]core.Participant, error) {
	out := make([]core.Participant, 0, len(f.participants))
	for _, p := range f.participants {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeLedger) Participant(ctx context.Context, id int64) (core.Participant, error) {
	p, ok := f.participants[id]
	if !ok {
		return core.Participant{}, storage.ErrParticipantNotFound
	}
	return p, nil
}

func (f *fakeLedger) SetPayoutDetails(ctx context.Context, id int64, payout string) error {
	p, ok := f.participants[id]
	if !ok {
		return storage.ErrParticipantNotFound
	}
	p.Payout = payout
	f.participants[id] = p
	return nil
}

func (f *fakeLedger) RecordExpense(ctx context.Context, payer core.Participant, amountText, currency, description, category string) (int64, error) {
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	if _, err := core.ParseDecimalToCents(amountText); err != nil {
		return 0, err
	}
	f.nextExpense++
	return f.nextExpense, nil
}

func (f *fakeLedger) AddShare(ctx context.Context, expenseID int64, debtor core.Participant, amountText string) (int64, error) {
	if f.shareErr != nil {
		return 0, f.shareErr
	}
	if _, err := core.ParseDecimalToCents(amountText); err != nil {
		return 0, err
	}
	f.nextShare++
	return f.nextShare, nil
}

func (f *fakeLedger) Balances(ctx context.Context) ([]core.Balance, error) {
	return f.balances, nil
}

func (f *fakeLedger) DebtsFor(ctx context.Context, debtorID int64) ([]storage.DebtorDebt, error) {
	return f.debts, nil
}

func (f *fakeLedger) OwedTotals(ctx context.Context) ([]storage.OwedTotal, error) {
	return nil, nil
}

func (f *fakeLedger) History(ctx context.Context, limit int) ([]storage.ExpenseWithPayer, error) {
	return f.history, nil
}

func (f *fakeLedger) RequestSettlement(ctx context.Context, requestedBy int64) error {
	f.requested = append(f.requested, requestedBy)
	return nil
}

type fakeSettler struct {
	plan      *settlement.Plan
	planErr   error
	committed *settlement.Plan
	commitErr error
}

func (f *fakeSettler) PlanSettlement(ctx context.Context) (*settlement.Plan, error) {
	return f.plan, f.planErr
}

func (f *fakeSettler) CommitSettlement(ctx context.Context, plan *settlement.Plan) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = plan
	return nil
}

func newTestServer(ledger *fakeLedger, settler *fakeSettler) *Server {
	return NewServer(":0", ledger, settler, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.10:1234"
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(newFakeLedger(), &fakeSettler{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}
}

func TestCreateExpense(t *testing.T) {
	srv := newTestServer(newFakeLedger(), &fakeSettler{})

	rr := doJSON(t, srv, http.MethodPost, "/expenses", expenseRequest{
		PayerID: 1, PayerName: "Alice", Amount: "100,50", Description: "dinner",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["id"] != 1 {
		t.Errorf("id = %d, want 1", resp["id"])
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name string
		req  expenseRequest
		want int
	}{
		{"bad amount", expenseRequest{PayerID: 1, PayerName: "Alice", Amount: "abc", Description: "x"}, http.StatusUnprocessableEntity},
		{"missing payer name", expenseRequest{PayerID: 1, Amount: "10", Description: "x"}, http.StatusUnprocessableEntity},
		{"missing payer id", expenseRequest{PayerName: "Alice", Amount: "10", Description: "x"}, http.StatusUnprocessableEntity},
	}
	srv := newTestServer(newFakeLedger(), &fakeSettler{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/expenses", tt.req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader("{not json"))
	req.RemoteAddr = "203.0.113.10:1234"
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestAddShareErrors(t *testing.T) {
	ledger := newFakeLedger()
	srv := newTestServer(ledger, &fakeSettler{})

	ledger.shareErr = core.ErrSelfDebt
	rr := doJSON(t, srv, http.MethodPost, "/shares", shareRequest{
		ExpenseID: 1, DebtorID: 1, DebtorName: "Alice", Amount: "10",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("self-debt status = %d, want 422", rr.Code)
	}

	ledger.shareErr = core.ErrUnknownExpense
	rr = doJSON(t, srv, http.MethodPost, "/shares", shareRequest{
		ExpenseID: 404, DebtorID: 2, DebtorName: "Bob", Amount: "10",
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown expense status = %d, want 404", rr.Code)
	}
}

func TestBalancesResponse(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances = []core.Balance{
		{ParticipantID: 1, Currency: "RUB", NetCents: 4000},
		{ParticipantID: 2, Currency: "RUB", NetCents: -4000},
	}
	srv := newTestServer(ledger, &fakeSettler{})

	rr := doJSON(t, srv, http.MethodGet, "/balances", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out []balanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d balances", len(out))
	}
	if out[0].Net != "40.00" || out[1].Net != "-40.00" {
		t.Errorf("formatted nets = %q, %q", out[0].Net, out[1].Net)
	}
}

func TestPlanAndCommitRoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	ledger.participants[1] = core.Participant{ID: 1, Name: "Alice"}
	ledger.participants[2] = core.Participant{ID: 2, Name: "Bob"}

	settler := &fakeSettler{
		plan: &settlement.Plan{
			RunID: "run-1",
			Transfers: []settlement.PlannedTransfer{{
				Transfer: core.Transfer{From: 2, To: 1, Amount: core.Money{Cents: 10000}, Currency: "RUB"},
				Allocations: []core.Allocation{
					{ShareID: 7, ExpenseID: 3, AmountCents: 10000, ShareAmountCents: 10000},
				},
			}},
		},
	}
	srv := newTestServer(ledger, settler)

	rr := doJSON(t, srv, http.MethodPost, "/settlement/plan", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("plan status = %d, body %s", rr.Code, rr.Body.String())
	}
	var payload planPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RunID != "run-1" {
		t.Errorf("run_id = %q", payload.RunID)
	}
	if len(payload.Transfers) != 1 {
		t.Fatalf("got %d transfers", len(payload.Transfers))
	}
	tr := payload.Transfers[0]
	if tr.FromName != "Bob" || tr.ToName != "Alice" || tr.Amount != "100.00" {
		t.Errorf("transfer payload = %+v", tr)
	}

	// Commit the exact payload the plan endpoint returned.
	rr = doJSON(t, srv, http.MethodPost, "/settlement/commit", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body %s", rr.Code, rr.Body.String())
	}
	if settler.committed == nil {
		t.Fatal("commit never reached the settler")
	}
	if settler.committed.RunID != "run-1" {
		t.Errorf("committed run_id = %q", settler.committed.RunID)
	}
	got := settler.committed.Transfers[0]
	if got.Transfer.From != 2 || got.Transfer.Amount.Cents != 10000 {
		t.Errorf("committed transfer = %+v", got.Transfer)
	}
	if len(got.Allocations) != 1 || got.Allocations[0].ShareID != 7 {
		t.Errorf("committed allocations = %+v", got.Allocations)
	}
}

func TestCommitConflict(t *testing.T) {
	settler := &fakeSettler{
		commitErr: &settlement.CommitError{
			Transfer:   core.Transfer{From: 2, To: 1, Amount: core.Money{Cents: 100}, Currency: "RUB"},
			Allocation: core.Allocation{ShareID: 7},
			Reason:     settlement.ErrShareAlreadyPaid,
		},
	}
	srv := newTestServer(newFakeLedger(), settler)

	rr := doJSON(t, srv, http.MethodPost, "/settlement/commit", planPayload{RunID: "run-1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("stale commit status = %d, want 409", rr.Code)
	}
}

func TestRequestSettlementQueued(t *testing.T) {
	ledger := newFakeLedger()
	srv := newTestServer(ledger, &fakeSettler{})

	rr := doJSON(t, srv, http.MethodPost, "/settlement/request", settlementRequestBody{RequestedBy: 42})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(ledger.requested) != 1 || ledger.requested[0] != 42 {
		t.Errorf("requested = %v", ledger.requested)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(newFakeLedger(), &fakeSettler{})

	for _, path := range []string{"/expenses", "/shares", "/settlement/plan"} {
		rr := doJSON(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s status = %d, want 405", path, rr.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	srv := newTestServer(newFakeLedger(), &fakeSettler{})

	var last int
	for i := 0; i < 70; i++ {
		rr := doJSON(t, srv, http.MethodPost, "/expenses", expenseRequest{
			PayerID: 1, PayerName: "Alice", Amount: "1", Description: fmt.Sprintf("x%d", i),
		})
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}
}
