package payin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/errorhandler"
	"github.com/mwork/payin-api/internal/pkg/provider"
	"github.com/mwork/payin-api/internal/pkg/response"
)

// Handler serves the payin API
type Handler struct {
	service *Service
}

// NewHandler creates payin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /payins
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)

	req, fieldErrs, err := decodeCreateRequest(r.Body)
	if err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if fieldErrs != nil {
		errorhandler.LogValidationError(ctx, fieldErrs)
		response.ValidationError(w, fieldErrs)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if req.UserID == uuid.Nil {
		req.UserID = callerID
	}
	if req.UserID != callerID && !middleware.IsPrivileged(ctx) {
		response.Forbidden(w, "Cannot create payins for another user")
		return
	}

	result, err := h.service.Create(ctx, req)
	if err != nil {
		h.writeCreateError(w, r, err)
		return
	}

	if result.Replay {
		response.OK(w, NewCreatePayinResponse(result))
		return
	}
	response.Created(w, NewCreatePayinResponse(result))
}

// decodeCreateRequest decodes field by field so a value of the wrong shape
// is reported against its JSON name instead of failing the whole body.
func decodeCreateRequest(body io.ReadCloser) (CreatePayinRequest, map[string]string, error) {
	var req CreatePayinRequest
	var raw map[string]json.RawMessage
	if err := response.DecodeJSON(body, &raw); err != nil {
		return req, nil, err
	}

	fields := map[string]interface{}{
		"userId":         &req.UserID,
		"userEmail":      &req.UserEmail,
		"amount":         &req.Amount,
		"currency":       &req.Currency,
		"country":        &req.Country,
		"paymentMethod":  &req.PaymentMethod,
		"description":    &req.Description,
		"idempotencyKey": &req.IdempotencyKey,
	}
	var errs map[string]string
	for name, dst := range fields {
		value, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			if errs == nil {
				errs = map[string]string{}
			}
			errs[name] = invalidFieldMessage(name)
		}
	}
	return req, errs, nil
}

func invalidFieldMessage(name string) string {
	switch name {
	case "userId":
		return "Must be a UUID"
	case "amount":
		return "Must be a positive decimal amount"
	default:
		return "Must be a string"
	}
}

func (h *Handler) writeCreateError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var validationErr *ValidationError
	var marketErr *UnsupportedMarketError
	switch {
	case errors.As(err, &validationErr):
		errorhandler.LogValidationError(ctx, validationErr.Fields)
		response.ValidationError(w, validationErr.Fields)
	case errors.As(err, &marketErr):
		response.Unprocessable(w, "UNSUPPORTED_MARKET", marketErr.Reason, map[string]string{
			"country":       marketErr.Country,
			"currency":      marketErr.Currency,
			"paymentMethod": marketErr.Method,
		})
	case errors.Is(err, ErrCreateInProgress):
		errorhandler.HandleError(ctx, w, http.StatusConflict, "IN_PROGRESS", "A payin with this idempotency key is being created", err)
	case errors.Is(err, ErrIdempotencyConflict):
		errorhandler.HandleError(ctx, w, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key was used with a different request", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create payin", err)
	}
}

// Get handles GET /payins/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	response.OK(w, NewPayinResponse(p))
}

// ProviderStatus handles GET /payins/{id}/provider-status
func (h *Handler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	status, err := h.service.ProviderStatus(r.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrOrderNotFound):
			response.NotFound(w, "Provider has no order for this payin")
		case provider.IsRetryable(err):
			errorhandler.LogExternalServiceError(r.Context(), "provider", "get_order", 0, err, "")
			response.ServiceUnavailable(w, "Provider is unavailable")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusBadGateway, "PROVIDER_ERROR", "Provider returned an error", err)
		}
		return
	}
	response.OK(w, status)
}

// List handles GET /payins
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if raw := r.URL.Query().Get("userId"); raw != "" && middleware.IsPrivileged(ctx) {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid userId")
			return
		}
		userID = parsed
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	// One extra row tells whether another page exists.
	items, err := h.service.List(ctx, userID, limit+1, offset)
	if err != nil {
		errorhandler.LogDatabaseError(ctx, "list payins", err)
		response.InternalError(w)
		return
	}
	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}

	out := make([]PayinResponse, 0, len(items))
	for _, p := range items {
		out = append(out, NewPayinResponse(p))
	}
	response.WithMeta(w, out, response.Meta{Limit: limit, Offset: offset, Count: len(out), HasNext: hasNext})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*PayinRequest, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid payin ID")
		return nil, false
	}

	ctx := r.Context()
	p, err := h.service.Get(ctx, id, middleware.GetUserID(ctx), middleware.IsPrivileged(ctx))
	if err != nil {
		if errors.Is(err, ErrPayinNotFound) {
			response.NotFound(w, "Payin not found")
			return nil, false
		}
		errorhandler.LogDatabaseError(ctx, "get payin", err)
		response.InternalError(w)
		return nil, false
	}
	return p, true
}

// Routes returns the payin router; callers mount it behind auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/provider-status", h.ProviderStatus)
	return r
}
