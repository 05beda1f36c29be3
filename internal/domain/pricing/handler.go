package pricing

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/errorhandler"
	"github.com/mwork/payin-api/internal/pkg/jwt"
	"github.com/mwork/payin-api/internal/pkg/response"
	"github.com/mwork/payin-api/internal/pkg/validator"
)

// Handler exposes cached rates and quotes.
type Handler struct {
	cache *Cache
}

func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

type ratesResponse struct {
	Market     string                     `json:"market"`
	Currency   string                     `json:"currency"`
	SellPrice  decimal.Decimal            `json:"sellPrice"`
	FixedCosts map[string]decimal.Decimal `json:"fixedCosts"`
	FetchedAt  time.Time                  `json:"fetchedAt"`
	ExpiresAt  time.Time                  `json:"expiresAt"`
	Stale      bool                       `json:"stale"`
}

// marketParam reads {market}; false means a 422 was already written.
func marketParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	market := strings.ToUpper(chi.URLParam(r, "market"))
	if err := validator.ValidateVar(market, "iso_country"); err != nil {
		response.ValidationError(w, map[string]string{"market": "Must be an ISO 3166-1 alpha-2 country code (e.g. CO)"})
		return "", false
	}
	return market, true
}

// Rates handles GET /pricing/{market}/rates
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}

	rates, err := h.cache.GetRates(r.Context(), market)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "RATES_UNAVAILABLE", "Rates are temporarily unavailable", err)
		return
	}

	h.writeRates(w, market, rates)
}

func (h *Handler) writeRates(w http.ResponseWriter, market string, rates *Rates) {
	response.OK(w, ratesResponse{
		Market:     market,
		Currency:   rates.Table.Currency,
		SellPrice:  rates.Table.SellPrice,
		FixedCosts: rates.Table.FixedCosts,
		FetchedAt:  rates.FetchedAt,
		ExpiresAt:  rates.ExpiresAt,
		Stale:      rates.Stale,
	})
}

// Quote handles GET /pricing/{market}/quote?amount=&method=
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	method := strings.ToUpper(r.URL.Query().Get("method"))

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || !amount.IsPositive() {
		response.ValidationError(w, map[string]string{"amount": "Must be a positive decimal amount"})
		return
	}
	if method == "" {
		response.ValidationError(w, map[string]string{"method": "This field is required"})
		return
	}

	quote, err := h.cache.Quote(r.Context(), amount, market, method)
	if err != nil {
		if errors.Is(err, ErrRatesUnavailable) {
			errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "RATES_UNAVAILABLE", "Rates are temporarily unavailable", err)
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to quote", err)
		return
	}

	response.OK(w, quote)
}

// Refresh handles POST /pricing/{market}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}

	rates, err := h.cache.Refresh(r.Context(), market)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "RATES_UNAVAILABLE", "Rates are temporarily unavailable", err)
		return
	}
	log.Info().Str("market", market).Str("by", middleware.GetUserID(r.Context()).String()).Msg("Rates refreshed on demand")
	h.writeRates(w, market, rates)
}

// Routes returns the pricing router; callers mount it behind auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{market}/rates", h.Rates)
	r.Get("/{market}/quote", h.Quote)
	r.With(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleService)).Post("/{market}/refresh", h.Refresh)
	return r
}
