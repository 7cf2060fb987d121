package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"dolgi/internal/core"
	"dolgi/internal/storage"
)

type participantRequest struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Payout string `json:"payout,omitempty"`
}

type participantResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Payout string `json:"payout,omitempty"`
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		participants, err := s.ledger.Participants(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "List participants failed", "error", err)
			writeError(w, http.StatusInternalServerError, "list participants")
			return
		}
		out := make([]participantResponse, 0, len(participants))
		for _, p := range participants {
			out = append(out, participantResponse{ID: p.ID, Name: p.Name, Payout: p.Payout})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req participantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		p := core.Participant{ID: req.ID, Name: sanitizeInput(req.Name)}
		if err := p.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.ledger.RegisterParticipant(r.Context(), p); err != nil {
			slog.ErrorContext(r.Context(), "Register participant failed", "participant_id", p.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "register participant")
			return
		}
		writeJSON(w, http.StatusCreated, participantResponse{ID: p.ID, Name: p.Name})

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSetPayout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == 0 {
		writeError(w, http.StatusUnprocessableEntity, "participant id required")
		return
	}
	err := s.ledger.SetPayoutDetails(r.Context(), req.ID, sanitizeInput(req.Payout))
	if errors.Is(err, storage.ErrParticipantNotFound) {
		writeError(w, http.StatusNotFound, "unknown participant")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Set payout failed", "participant_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "set payout details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type expenseRequest struct {
	PayerID     int64  `json:"payer_id"`
	PayerName   string `json:"payer_name"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payer := core.Participant{ID: req.PayerID, Name: sanitizeInput(req.PayerName)}
	if err := payer.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.ledger.RecordExpense(r.Context(), payer,
		req.Amount, req.Currency, sanitizeInput(req.Description), sanitizeInput(req.Category))
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrEmptyDescription) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Record expense failed", "payer_id", payer.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "record expense")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type shareRequest struct {
	ExpenseID  int64  `json:"expense_id"`
	DebtorID   int64  `json:"debtor_id"`
	DebtorName string `json:"debtor_name"`
	Amount     string `json:"amount"`
}

func (s *Server) handleAddShare(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	debtor := core.Participant{ID: req.DebtorID, Name: sanitizeInput(req.DebtorName)}
	if err := debtor.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.ledger.AddShare(r.Context(), req.ExpenseID, debtor, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnknownExpense):
			writeError(w, http.StatusNotFound, "unknown expense")
		case errors.Is(err, core.ErrSelfDebt):
			writeError(w, http.StatusUnprocessableEntity, "debtor and payer are the same participant")
		case errors.Is(err, core.ErrInvalidAmount):
			writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		default:
			slog.ErrorContext(r.Context(), "Add share failed",
				"expense_id", req.ExpenseID, "debtor_id", debtor.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "add debt share")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type balanceResponse struct {
	ParticipantID int64  `json:"participant_id"`
	Currency      string `json:"currency"`
	NetCents      int64  `json:"net_cents"`
	Net           string `json:"net"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	balances, err := s.ledger.Balances(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Balances failed", "error", err)
		writeError(w, http.StatusInternalServerError, "compute balances")
		return
	}

	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			ParticipantID: b.ParticipantID,
			Currency:      b.Currency,
			NetCents:      b.NetCents,
			Net:           core.FormatCents(b.NetCents),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type debtResponse struct {
	ShareID     int64  `json:"share_id"`
	ExpenseID   int64  `json:"expense_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	debtorID, err := parseQueryInt64(r, "participant_id")
	if err != nil || debtorID == 0 {
		writeError(w, http.StatusBadRequest, "participant_id query parameter required")
		return
	}

	debts, err := s.ledger.DebtsFor(r.Context(), debtorID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Debts lookup failed", "participant_id", debtorID, "error", err)
		writeError(w, http.StatusInternalServerError, "list debts")
		return
	}

	out := make([]debtResponse, 0, len(debts))
	for _, d := range debts {
		out = append(out, debtResponse{
			ShareID:     d.ShareID,
			ExpenseID:   d.ExpenseID,
			Description: d.Description,
			AmountCents: d.AmountCents,
			Amount:      core.FormatCents(d.AmountCents),
			Currency:    d.Currency,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type owedTotalResponse struct {
	ParticipantID int64  `json:"participant_id"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount"`
}

func (s *Server) handleOwedTotals(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	totals, err := s.ledger.OwedTotals(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Owed totals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sum unpaid debts")
		return
	}

	out := make([]owedTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, owedTotalResponse{
			ParticipantID: t.ParticipantID,
			Name:          t.Name,
			Currency:      t.Currency,
			AmountCents:   t.AmountCents,
			Amount:        core.FormatCents(t.AmountCents),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type historyEntryResponse struct {
	ID          int64  `json:"id"`
	PayerID     int64  `json:"payer_id"`
	PayerName   string `json:"payer_name"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit, err := parseQueryInt64(r, "limit")
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	expenses, err := s.ledger.History(r.Context(), int(limit))
	if err != nil {
		slog.ErrorContext(r.Context(), "History failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list expenses")
		return
	}

	out := make([]historyEntryResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, historyEntryResponse{
			ID:          e.ID,
			PayerID:     e.PayerID,
			PayerName:   e.PayerName,
			AmountCents: e.Amount.Cents,
			Amount:      e.Amount.String(),
			Currency:    e.Currency,
			Description: e.Description,
			Category:    e.Category,
			CreatedAt:   e.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
