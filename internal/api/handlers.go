package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/trogers1052/brokerage-ledger/internal/accounts"
	"github.com/trogers1052/brokerage-ledger/internal/balance"
	"github.com/trogers1052/brokerage-ledger/internal/catalog"
	"github.com/trogers1052/brokerage-ledger/internal/engine"
	"github.com/trogers1052/brokerage-ledger/internal/ledger"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/portfolio"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// ActorHeader carries the id of the user driving a request. Identity is
// established upstream; the ledger only records it.
const ActorHeader = "X-Actor-ID"

// Services are the core components the handlers adapt to HTTP
type Services struct {
	Engine     *engine.Engine
	Ledger     *ledger.Service
	Balances   *balance.Service
	Catalog    *catalog.Catalog
	Accounts   *accounts.Service
	Revaluer   *portfolio.Revaluer
	Portfolios repository.PortfolioRepository
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc Services
	log zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc Services, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With().Str("component", "api").Logger(),
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError maps the ledger's error taxonomy onto HTTP status codes
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}

	if ledger.IsBusinessError(err) || status < http.StatusInternalServerError {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	} else {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	respondJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidTransactionType),
		errors.Is(err, models.ErrInvalidTransactionStatus):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientShares),
		errors.Is(err, models.ErrKYCNotApproved),
		errors.Is(err, models.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return models.NewValidationError("body", "is not valid JSON: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func actorID(r *http.Request) (int64, error) {
	raw := r.Header.Get(ActorHeader)
	if raw == "" {
		return 0, models.NewValidationError(ActorHeader, "header is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(ActorHeader, "must be a positive integer")
	}
	return id, nil
}
