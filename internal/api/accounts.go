package api

import (
	"net/http"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		Role      string `json:"role"`
		KYCStatus string `json:"kyc_status"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	user := &models.User{
		Name:      req.Name,
		Email:     req.Email,
		Role:      models.Role(req.Role),
		KYCStatus: models.KYCStatus(req.KYCStatus),
	}
	if err := h.svc.Accounts.CreateUser(r.Context(), user); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.svc.Accounts.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// SetKYCStatus handles PUT /users/{id}/kyc
func (h *Handler) SetKYCStatus(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := h.svc.Accounts.SetKYCStatus(r.Context(), id, models.KYCStatus(req.Status), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type balanceResponse struct {
	*models.AccountBalance
	AvailableCash     string `json:"available_cash"`
	TotalAccountValue string `json:"total_account_value"`
}

func newBalanceResponse(b *models.AccountBalance) balanceResponse {
	return balanceResponse{
		AccountBalance:    b,
		AvailableCash:     b.AvailableCash().String(),
		TotalAccountValue: b.TotalAccountValue().String(),
	}
}

// GetBalance handles GET /users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	b, err := h.svc.Balances.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newBalanceResponse(b))
}

// RebuildBalance handles POST /users/{id}/balance/rebuild
func (h *Handler) RebuildBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	b, err := h.svc.Balances.Rebuild(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newBalanceResponse(b))
}

// GetPortfolio handles GET /users/{id}/portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	positions, err := h.svc.Portfolios.ListPortfolios(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if positions == nil {
		positions = []*models.Portfolio{}
	}
	respondJSON(w, http.StatusOK, positions)
}

// RevaluePortfolio handles POST /users/{id}/portfolio/revalue
func (h *Handler) RevaluePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.Revaluer.RevalueUser(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.GetPortfolio(w, r)
}
