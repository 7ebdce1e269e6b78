package api

import (
	"net/http"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// ListCompanies handles GET /companies
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.svc.Catalog.ListCompanies(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if companies == nil {
		companies = []*models.Company{}
	}
	respondJSON(w, http.StatusOK, companies)
}

// CreateCompany handles POST /companies
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var company models.Company
	if err := decodeBody(r, &company); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.Catalog.CreateCompany(r.Context(), &company); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, company)
}

// GetCompany handles GET /companies/{id}
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	company, err := h.svc.Catalog.GetCompany(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, company)
}

// SetCompanyActive handles PUT /companies/{id}/active
func (h *Handler) SetCompanyActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.Catalog.SetActive(r.Context(), id, req.Active); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCompany handles DELETE /companies/{id}
func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.Catalog.DeleteCompany(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStock handles GET /companies/{id}/stock
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	stock, err := h.svc.Catalog.GetStock(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stock)
}

// GetPriceHistory handles GET /companies/{id}/prices?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			h.respondError(w, r, models.NewValidationError("from", "must be YYYY-MM-DD"))
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			h.respondError(w, r, models.NewValidationError("to", "must be YYYY-MM-DD"))
			return
		}
	}

	prices, err := h.svc.Catalog.History(r.Context(), id, from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if prices == nil {
		prices = []*models.StockPrice{}
	}
	respondJSON(w, http.StatusOK, prices)
}

// ApplyQuote handles POST /quotes. The quote is applied to the catalog and the
// holders of the company are revalued, the same path the price feed takes.
func (h *Handler) ApplyQuote(w http.ResponseWriter, r *http.Request) {
	var quote models.PriceQuote
	if err := decodeBody(r, &quote); err != nil {
		h.respondError(w, r, err)
		return
	}

	stock, err := h.svc.Catalog.ApplyQuote(r.Context(), quote)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := h.svc.Revaluer.RevalueCompany(r.Context(), stock.CompanyID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stock)
}
