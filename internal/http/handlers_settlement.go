package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"dolgi/internal/core"
	"dolgi/internal/settlement"
)

type allocationPayload struct {
	ShareID          int64 `json:"share_id"`
	ExpenseID        int64 `json:"expense_id"`
	AmountCents      int64 `json:"amount_cents"`
	ShareAmountCents int64 `json:"share_amount_cents"`
}

type transferPayload struct {
	From        int64               `json:"from"`
	FromName    string              `json:"from_name,omitempty"`
	To          int64               `json:"to"`
	ToName      string              `json:"to_name,omitempty"`
	AmountCents int64               `json:"amount_cents"`
	Amount      string              `json:"amount"`
	Currency    string              `json:"currency"`
	Allocations []allocationPayload `json:"allocations"`
}

// planPayload is the wire form of a settlement plan. A client holds it
// between plan and commit; commit revalidates every allocation against the
// live ledger, so a stale payload fails cleanly.
type planPayload struct {
	RunID     string            `json:"run_id"`
	Transfers []transferPayload `json:"transfers"`
}

func (s *Server) planToPayload(r *http.Request, plan *settlement.Plan) planPayload {
	names := make(map[int64]string)
	lookup := func(id int64) string {
		if name, ok := names[id]; ok {
			return name
		}
		p, err := s.ledger.Participant(r.Context(), id)
		if err != nil {
			names[id] = ""
			return ""
		}
		names[id] = p.Name
		return p.Name
	}

	out := planPayload{RunID: plan.RunID, Transfers: make([]transferPayload, 0, len(plan.Transfers))}
	for _, pt := range plan.Transfers {
		allocs := make([]allocationPayload, 0, len(pt.Allocations))
		for _, a := range pt.Allocations {
			allocs = append(allocs, allocationPayload{
				ShareID:          a.ShareID,
				ExpenseID:        a.ExpenseID,
				AmountCents:      a.AmountCents,
				ShareAmountCents: a.ShareAmountCents,
			})
		}
		out.Transfers = append(out.Transfers, transferPayload{
			From:        pt.Transfer.From,
			FromName:    lookup(pt.Transfer.From),
			To:          pt.Transfer.To,
			ToName:      lookup(pt.Transfer.To),
			AmountCents: pt.Transfer.Amount.Cents,
			Amount:      pt.Transfer.Amount.String(),
			Currency:    pt.Transfer.Currency,
			Allocations: allocs,
		})
	}
	return out
}

func payloadToPlan(p planPayload) *settlement.Plan {
	plan := &settlement.Plan{RunID: p.RunID}
	for _, t := range p.Transfers {
		allocs := make([]core.Allocation, 0, len(t.Allocations))
		for _, a := range t.Allocations {
			allocs = append(allocs, core.Allocation{
				ShareID:          a.ShareID,
				ExpenseID:        a.ExpenseID,
				AmountCents:      a.AmountCents,
				ShareAmountCents: a.ShareAmountCents,
			})
		}
		plan.Transfers = append(plan.Transfers, settlement.PlannedTransfer{
			Transfer: core.Transfer{
				From:     t.From,
				To:       t.To,
				Amount:   core.Money{Cents: t.AmountCents},
				Currency: t.Currency,
			},
			Allocations: allocs,
		})
	}
	return plan
}

func (s *Server) handlePlanSettlement(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	plan, err := s.settler.PlanSettlement(r.Context())
	if err != nil {
		var inconsistency *settlement.InconsistencyError
		if errors.As(err, &inconsistency) {
			slog.ErrorContext(r.Context(), "Settlement planning found inconsistent ledger", "error", err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Settlement planning failed", "error", err)
		writeError(w, http.StatusInternalServerError, "plan settlement")
		return
	}

	writeJSON(w, http.StatusOK, s.planToPayload(r, plan))
}

func (s *Server) handleCommitSettlement(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var payload planPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	plan := payloadToPlan(payload)
	if err := s.settler.CommitSettlement(r.Context(), plan); err != nil {
		var commitErr *settlement.CommitError
		if errors.As(err, &commitErr) {
			// The ledger moved between plan and commit; client replans.
			slog.WarnContext(r.Context(), "Settlement commit rejected",
				"run_id", plan.RunID, "error", err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Settlement commit failed",
			"run_id", plan.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "commit settlement")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    plan.RunID,
		"status":    "committed",
		"transfers": len(plan.Transfers),
	})
}

type settlementRequestBody struct {
	RequestedBy int64 `json:"requested_by"`
}

func (s *Server) handleRequestSettlement(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req settlementRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.ledger.RequestSettlement(r.Context(), req.RequestedBy); err != nil {
		slog.ErrorContext(r.Context(), "Settlement request publish failed",
			"requested_by", req.RequestedBy, "error", err)
		writeError(w, http.StatusServiceUnavailable, "queue settlement request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
