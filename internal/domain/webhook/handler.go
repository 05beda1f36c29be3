package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mwork/payin-api/internal/pkg/logger"
	"github.com/mwork/payin-api/internal/pkg/metrics"
	"github.com/mwork/payin-api/internal/pkg/response"
	"github.com/mwork/payin-api/internal/pkg/signature"
)

const defaultMaxBodyBytes = 1 << 20

type ack struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Handler receives provider callbacks. It sits outside JWT auth; the body
// signature is the only credential.
type Handler struct {
	reconciler *Reconciler
	secret     string
	maxBody    int64
}

func NewHandler(reconciler *Reconciler, secret string, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{reconciler: reconciler, secret: secret, maxBody: maxBody}
}

// Provider handles POST /webhooks/provider
func (h *Handler) Provider(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Str("request_id", logger.RequestID(r.Context())).Int64("limit", h.maxBody).Msg("Webhook body too large")
			response.Raw(w, http.StatusRequestEntityTooLarge, h.reply(ReplyError))
			return
		}
		response.Raw(w, http.StatusBadRequest, h.reply(ReplyError))
		return
	}

	if !signature.Verify(body, r.Header.Get(signature.HeaderName), h.secret) {
		metrics.WebhookRejected.Inc()
		log.Warn().
			Str("request_id", logger.RequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Int("body_bytes", len(body)).
			Msg("Webhook signature rejected")
		response.Raw(w, http.StatusUnauthorized, h.reply(ReplyError))
		return
	}

	out := h.reconciler.Reconcile(r.Context(), body)
	response.Raw(w, http.StatusOK, h.reply(out.Reply))
}

func (h *Handler) reply(status string) ack {
	return ack{Status: status, Timestamp: h.reconciler.now().UTC().Format(time.RFC3339)}
}

// Routes returns webhook router (no auth, signature verification only)
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/provider", h.Provider)
	return r
}
