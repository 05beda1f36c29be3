package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/payin-api/internal/domain/payin"
	"github.com/mwork/payin-api/internal/domain/wallet"
	"github.com/mwork/payin-api/internal/pkg/metrics"
)

// Response statuses returned to the provider.
const (
	ReplyReceived = "received"
	ReplyError    = "error"
)

// Side effects of an authenticated callback outlive the provider's connection
// but not these bounds.
const (
	archiveTimeout = 5 * time.Second
	stateTimeout   = 15 * time.Second
)

// Settler credits a completed payin; *wallet.Service satisfies it.
type Settler interface {
	Settle(ctx context.Context, p *payin.PayinRequest) (*wallet.Settlement, error)
}

// Outcome summarises one reconciled callback.
type Outcome struct {
	Reply   string
	EventID uuid.UUID
	Kind    EventKind
	Audit   AuditStatus
	PayinID uuid.UUID
}

// Reconciler routes authenticated callbacks to payin transitions and settlement.
type Reconciler struct {
	payins   payin.Repository
	settler  Settler
	audit    Repository
	tiers    []Tier
	archiver *Archiver
	now      func() time.Time
}

// NewReconciler creates a reconciler with the default lookup tiers. archiver may be nil.
func NewReconciler(payins payin.Repository, settler Settler, audit Repository, archiver *Archiver) *Reconciler {
	return &Reconciler{
		payins:   payins,
		settler:  settler,
		audit:    audit,
		tiers:    DefaultTiers(payins),
		archiver: archiver,
		now:      time.Now,
	}
}

// Reconcile processes one authenticated callback body and writes exactly one
// audit event for it.
func (r *Reconciler) Reconcile(ctx context.Context, body []byte) Outcome {
	receivedAt := r.now()
	ev := &Event{
		ID:             uuid.New(),
		Kind:           KindUnknown,
		RawPayload:     strings.ToValidUTF8(strings.ReplaceAll(string(body), "\x00", ""), "�"),
		SignatureValid: true,
	}
	if r.archiver != nil {
		archiveCtx, cancel := detached(ctx, archiveTimeout)
		key, err := r.archiver.Archive(archiveCtx, body, receivedAt)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("Failed to archive webhook payload")
		} else {
			ev.ArchiveKey = nullString(key)
		}
	}

	reply := r.process(ctx, body, ev)
	r.record(ctx, ev)

	out := Outcome{Reply: reply, EventID: ev.ID, Kind: ev.Kind, Audit: ev.Status}
	if ev.PayinID.Valid {
		out.PayinID = ev.PayinID.UUID
	}
	return out
}

func (r *Reconciler) process(ctx context.Context, body []byte, ev *Event) string {
	payload, err := ParsePayload(body)
	if err != nil {
		return fail(ev, "malformed payload: "+err.Error())
	}
	ev.Kind = Classify(payload)
	ev.EventType = payload.Event
	ev.ProviderStatus = payload.Status
	ev.OrderID = nullString(payload.OrderID)

	p, tier, err := r.locate(ctx, payload)
	if err != nil {
		return fail(ev, "lookup failed: "+err.Error())
	}
	if p != nil {
		ev.PayinID = uuid.NullUUID{UUID: p.ID, Valid: true}
		ev.LookupTier = nullString(tier)
	}

	next, known := ev.Kind.TargetStatus()
	if !known {
		ev.Status = AuditPending
		ev.ErrorMessage = nullString(fmt.Sprintf("unrecognised event %q with status %q", payload.Event, payload.Status))
		log.Warn().Str("event", payload.Event).Str("status", payload.Status).Msg("Unknown webhook event kind")
		return ReplyReceived
	}
	if p == nil {
		log.Warn().
			Str("order_id", payload.OrderID).
			Str("payin_id", payload.PayinID).
			Str("event", payload.Event).
			Msg("Webhook does not match any payin")
		return fail(ev, "no payin matches callback")
	}

	if next == payin.StatusCompleted {
		return r.settle(ctx, ev, payload, p)
	}
	return r.transition(ctx, ev, p, next)
}

func (r *Reconciler) locate(ctx context.Context, payload *Payload) (*payin.PayinRequest, string, error) {
	for _, tier := range r.tiers {
		found, err := tier.Locator.Locate(ctx, payload)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", tier.Name, err)
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			metrics.WebhookLookups.WithLabelValues(tier.Name).Inc()
			return found[0], tier.Name, nil
		default:
			log.Warn().Str("tier", tier.Name).Int("candidates", len(found)).Msg("Ambiguous webhook lookup, trying next tier")
		}
	}
	metrics.WebhookLookups.WithLabelValues("none").Inc()
	return nil, "", nil
}

func (r *Reconciler) settle(ctx context.Context, ev *Event, payload *Payload, p *payin.PayinRequest) string {
	if payload.Amount.Valid && !payload.Amount.Decimal.Equal(p.Amount) {
		return fail(ev, fmt.Sprintf("amount mismatch: callback %s, payin %s", payload.Amount.Decimal, p.Amount))
	}
	if payload.Currency != "" && payload.Currency != p.Currency {
		return fail(ev, fmt.Sprintf("currency mismatch: callback %s, payin %s", payload.Currency, p.Currency))
	}

	settleCtx, cancel := detached(ctx, stateTimeout)
	defer cancel()
	_, err := r.settler.Settle(settleCtx, p)
	switch {
	case err == nil:
		ev.Status = AuditProcessed
		return ReplyReceived
	case errors.Is(err, wallet.ErrAlreadySettled):
		ev.Status = AuditProcessed
		ev.ErrorMessage = nullString("duplicate: payin already settled")
		return ReplyReceived
	case errors.Is(err, wallet.ErrNotSettleable):
		ev.Status = AuditProcessed
		ev.ErrorMessage = nullString("ignored: payin is in a terminal state")
		log.Info().Str("payin_id", p.ID.String()).Msg("Ignoring completion for terminal payin")
		return ReplyReceived
	default:
		return fail(ev, "settlement failed: "+err.Error())
	}
}

func (r *Reconciler) transition(ctx context.Context, ev *Event, p *payin.PayinRequest, next payin.Status) string {
	transitionCtx, cancel := detached(ctx, stateTimeout)
	defer cancel()
	changed, err := r.payins.Transition(transitionCtx, p.ID, payin.SourcesFor(next), next)
	if err != nil {
		return fail(ev, "transition failed: "+err.Error())
	}
	ev.Status = AuditProcessed
	if !changed {
		ev.ErrorMessage = nullString(fmt.Sprintf("ignored: %s -> %s not allowed", p.Status, next))
		log.Info().
			Str("payin_id", p.ID.String()).
			Str("from", string(p.Status)).
			Str("to", string(next)).
			Msg("Ignoring stale webhook transition")
		return ReplyReceived
	}
	log.Info().
		Str("payin_id", p.ID.String()).
		Str("from", string(p.Status)).
		Str("to", string(next)).
		Msg("Payin status updated from webhook")
	return ReplyReceived
}

func (r *Reconciler) record(ctx context.Context, ev *Event) {
	metrics.WebhookEvents.WithLabelValues(string(ev.Kind), string(ev.Status)).Inc()
	recordCtx, cancel := detached(ctx, stateTimeout)
	defer cancel()
	if err := r.audit.Record(recordCtx, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Str("kind", string(ev.Kind)).
			Str("status", string(ev.Status)).
			Msg("Failed to record webhook event")
	}
}

func fail(ev *Event, msg string) string {
	ev.Status = AuditFailed
	ev.ErrorMessage = nullString(msg)
	return ReplyError
}

func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
