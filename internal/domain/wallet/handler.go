package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/errorhandler"
	"github.com/mwork/payin-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /wallets
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetUserID(ctx)
	if raw := r.URL.Query().Get("ownerId"); raw != "" && middleware.IsPrivileged(ctx) {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid ownerId")
			return
		}
		ownerID = parsed
	}

	wallets, err := h.svc.ListByOwner(ctx, ownerID)
	if err != nil {
		errorhandler.LogDatabaseError(ctx, "list wallets", err)
		response.InternalError(w)
		return
	}
	if wallets == nil {
		wallets = []*Wallet{}
	}
	response.OK(w, wallets)
}

// Get handles GET /wallets/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.load(w, r)
	if !ok {
		return
	}
	response.OK(w, wallet)
}

// Ledger handles GET /wallets/{id}/ledger
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.load(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.svc.Ledger(r.Context(), wallet.ID, limit, offset)
	if err != nil {
		errorhandler.LogDatabaseError(r.Context(), "list ledger", err)
		response.InternalError(w)
		return
	}
	if entries == nil {
		entries = []*LedgerEntry{}
	}
	response.OK(w, entries)
}

// Verify handles GET /wallets/{id}/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.load(w, r)
	if !ok {
		return
	}

	audit, err := h.svc.Verify(r.Context(), wallet.ID)
	if err != nil {
		if errors.Is(err, ErrSettlementInconsistency) {
			response.ErrorWithDetails(w, http.StatusConflict, "LEDGER_MISMATCH", "Wallet balance does not match its ledger", map[string]string{
				"balance":   audit.Balance.String(),
				"ledgerSum": audit.LedgerSum.String(),
			})
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to verify wallet", err)
		return
	}
	response.OK(w, map[string]interface{}{
		"walletId":   audit.WalletID,
		"balance":    audit.Balance,
		"ledgerSum":  audit.LedgerSum,
		"entries":    audit.Entries,
		"consistent": true,
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Wallet, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid wallet ID")
		return nil, false
	}

	ctx := r.Context()
	wallet, err := h.svc.Get(ctx, id, middleware.GetUserID(ctx), middleware.IsPrivileged(ctx))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			response.NotFound(w, "Wallet not found")
			return nil, false
		}
		errorhandler.LogDatabaseError(ctx, "get wallet", err)
		response.InternalError(w)
		return nil, false
	}
	return wallet, true
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/ledger", h.Ledger)
	r.Get("/{id}/verify", h.Verify)
	return r
}
