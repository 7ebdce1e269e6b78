package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

type cashRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CompanyID   int64           `json:"company_id,omitempty"`
}

// Deposit handles POST /users/{id}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cashFlow(w, r, func(ctx context.Context, userID, actor int64, req cashRequest) (*models.Transaction, error) {
		return h.svc.Ledger.Deposit(ctx, userID, req.Amount, req.Description, actor)
	})
}

// Withdraw handles POST /users/{id}/withdrawals
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cashFlow(w, r, func(ctx context.Context, userID, actor int64, req cashRequest) (*models.Transaction, error) {
		return h.svc.Ledger.RequestWithdrawal(ctx, userID, req.Amount, req.Description, actor)
	})
}

// RecordDividend handles POST /users/{id}/dividends
func (h *Handler) RecordDividend(w http.ResponseWriter, r *http.Request) {
	h.cashFlow(w, r, func(ctx context.Context, userID, actor int64, req cashRequest) (*models.Transaction, error) {
		return h.svc.Ledger.RecordDividend(ctx, userID, req.CompanyID, req.Amount, actor)
	})
}

// ChargeFee handles POST /users/{id}/fees
func (h *Handler) ChargeFee(w http.ResponseWriter, r *http.Request) {
	h.cashFlow(w, r, func(ctx context.Context, userID, actor int64, req cashRequest) (*models.Transaction, error) {
		return h.svc.Ledger.ChargeFee(ctx, userID, req.Amount, req.Description, actor)
	})
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, actor int64, req cashRequest) (*models.Transaction, error)) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req cashRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	tx, err := fn(r.Context(), userID, actor, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// ListUserTransactions handles GET /users/{id}/transactions
func (h *Handler) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	txs, err := h.svc.Ledger.ListByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

// GetTransaction handles GET /transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	tx, err := h.svc.Ledger.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// FinalizeTransaction handles POST /transactions/{id}/finalize
func (h *Handler) FinalizeTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	h.transactionAction(w, r, &req, func(ctx context.Context, id, actor int64) (*models.Transaction, error) {
		status, err := models.ParseTransactionStatus(req.Status)
		if err != nil {
			return nil, err
		}
		return h.svc.Ledger.Finalize(ctx, id, status, actor)
	})
}

// AdjustTransaction handles POST /transactions/{id}/adjust
func (h *Handler) AdjustTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdjustedAmount decimal.Decimal `json:"adjusted_amount"`
		Note           string          `json:"note"`
	}
	h.transactionAction(w, r, &req, func(ctx context.Context, id, actor int64) (*models.Transaction, error) {
		return h.svc.Ledger.Adjust(ctx, id, req.AdjustedAmount, req.Note, actor)
	})
}

// CorrectTransaction handles POST /transactions/{id}/corrections
func (h *Handler) CorrectTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta decimal.Decimal `json:"delta"`
		Note  string          `json:"note"`
	}
	h.transactionAction(w, r, &req, func(ctx context.Context, id, actor int64) (*models.Transaction, error) {
		return h.svc.Ledger.RecordCorrection(ctx, id, req.Delta, req.Note, actor)
	})
}

func (h *Handler) transactionAction(w http.ResponseWriter, r *http.Request, body any, fn func(ctx context.Context, id, actor int64) (*models.Transaction, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := decodeBody(r, body); err != nil {
		h.respondError(w, r, err)
		return
	}

	tx, err := fn(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}
