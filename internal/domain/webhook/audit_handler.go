package webhook

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/errorhandler"
	"github.com/mwork/payin-api/internal/pkg/jwt"
	"github.com/mwork/payin-api/internal/pkg/response"
	"github.com/mwork/payin-api/internal/pkg/storage"
)

// AuditHandler exposes the callback audit trail to operators.
type AuditHandler struct {
	audit    Repository
	archiver *Archiver
}

// NewAuditHandler creates the audit trail handler. archiver may be nil.
func NewAuditHandler(audit Repository, archiver *Archiver) *AuditHandler {
	return &AuditHandler{audit: audit, archiver: archiver}
}

// EventResponse is one audit row as returned by the API.
type EventResponse struct {
	ID             uuid.UUID   `json:"id"`
	EventType      string      `json:"eventType"`
	Kind           EventKind   `json:"kind"`
	ProviderStatus string      `json:"providerStatus"`
	OrderID        *string     `json:"orderId,omitempty"`
	LookupTier     *string     `json:"lookupTier,omitempty"`
	Status         AuditStatus `json:"status"`
	ErrorMessage   *string     `json:"errorMessage,omitempty"`
	ArchiveKey     *string     `json:"archiveKey,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func newEventResponse(e *Event) EventResponse {
	out := EventResponse{
		ID:             e.ID,
		EventType:      e.EventType,
		Kind:           e.Kind,
		ProviderStatus: e.ProviderStatus,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
	}
	if e.OrderID.Valid {
		out.OrderID = &e.OrderID.String
	}
	if e.LookupTier.Valid {
		out.LookupTier = &e.LookupTier.String
	}
	if e.ErrorMessage.Valid {
		out.ErrorMessage = &e.ErrorMessage.String
	}
	if e.ArchiveKey.Valid {
		out.ArchiveKey = &e.ArchiveKey.String
	}
	return out
}

// ListByPayin handles GET /webhook-events/payins/{payinId}
func (h *AuditHandler) ListByPayin(w http.ResponseWriter, r *http.Request) {
	payinID, err := uuid.Parse(chi.URLParam(r, "payinId"))
	if err != nil {
		response.BadRequest(w, "Invalid payin ID")
		return
	}

	events, err := h.audit.ListByPayin(r.Context(), payinID)
	if err != nil {
		errorhandler.LogDatabaseError(r.Context(), "list webhook events", err)
		response.InternalError(w)
		return
	}

	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, newEventResponse(e))
	}
	response.OK(w, out)
}

// Payload handles GET /webhook-events/archive/*
func (h *AuditHandler) Payload(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		response.NotFound(w, "Payload archive is disabled")
		return
	}

	body, err := h.archiver.Load(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(w, "Archived payload not found")
			return
		}
		errorhandler.LogExternalServiceError(r.Context(), "storage", "get", 0, err, "")
		response.ServiceUnavailable(w, "Archive is unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Routes returns the audit router; callers mount it behind auth.
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleService))
	r.Get("/payins/{payinId}", h.ListByPayin)
	r.Get("/archive/*", h.Payload)
	return r
}
