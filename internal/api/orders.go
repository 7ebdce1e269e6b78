package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/engine"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

type placeOrderRequest struct {
	UserID        int64           `json:"user_id"`
	CompanyID     int64           `json:"company_id"`
	Type          string          `json:"type"`
	Quantity      int64           `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Notes         string          `json:"notes"`
}

// PlaceOrder handles POST /orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	orderType, err := models.ParseOrderType(req.Type)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.svc.Engine.PlaceOrder(r.Context(), engine.PlaceOrderRequest{
		UserID:        req.UserID,
		CompanyID:     req.CompanyID,
		Type:          orderType,
		Quantity:      req.Quantity,
		PricePerShare: req.PricePerShare,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	order, err := h.svc.Engine.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GetOrderByNumber handles GET /orders/by-number/{number}
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Engine.GetOrderByNumber(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// ListUserOrders handles GET /users/{id}/orders?status=
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var status *models.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := models.ParseOrderStatus(raw)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		status = &s
	}

	orders, err := h.svc.Engine.ListOrders(r.Context(), userID, status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// ApproveOrder handles POST /orders/{id}/approve
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(id, actor int64) (any, error) {
		return h.svc.Engine.Approve(r.Context(), id, actor)
	})
}

// RejectOrder handles POST /orders/{id}/reject
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	h.orderAction(w, r, func(id, actor int64) (any, error) {
		return h.svc.Engine.Reject(r.Context(), id, actor, req.Reason)
	})
}

// CancelOrder handles POST /orders/{id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(id, actor int64) (any, error) {
		return h.svc.Engine.Cancel(r.Context(), id, actor)
	})
}

// ExecuteOrder handles POST /orders/{id}/execute
func (h *Handler) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(id, actor int64) (any, error) {
		return h.svc.Engine.Execute(r.Context(), id, actor)
	})
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, fn func(id, actor int64) (any, error)) {
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
	out, err := fn(id, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
