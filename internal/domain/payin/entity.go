package payin

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents payin status
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo encodes pending -> {processing, completed, failed, rejected, expired}
// and processing -> {completed, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		switch next {
		case StatusProcessing, StatusCompleted, StatusFailed, StatusRejected, StatusExpired:
			return true
		}
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// SourcesFor returns the states from which next may be reached.
func SourcesFor(next Status) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusProcessing} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Source tells where the provider order id came from.
type Source string

const (
	SourceLive      Source = "live"
	SourceFallback  Source = "fallback"
	SourceSynthetic Source = "synthetic"
)

// PayinRequest is one inbound-payment intent.
type PayinRequest struct {
	ID                uuid.UUID           `db:"id"`
	UserID            uuid.UUID           `db:"user_id"`
	UserEmail         string              `db:"user_email"`
	Amount            decimal.Decimal     `db:"amount"`
	Currency          string              `db:"currency"`
	Country           string              `db:"country"`
	PaymentMethod     string              `db:"payment_method"`
	Description       sql.NullString      `db:"description"`
	Status            Status              `db:"status"`
	Source            Source              `db:"source"`
	ProviderOrderID   sql.NullString      `db:"provider_order_id"`
	PaymentURL        sql.NullString      `db:"payment_url"`
	IdempotencyKey    string              `db:"idempotency_key"`
	QuotedAmount      decimal.NullDecimal `db:"quoted_amount"`
	RetryCount        int                 `db:"retry_count"`
	LastError         sql.NullString      `db:"last_error"`
	WebhookReceived   bool                `db:"webhook_received"`
	WebhookReceivedAt sql.NullTime        `db:"webhook_received_at"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

// Reference is what ledger entries point back to: the provider order id, or the payin id for degraded records.
func (p *PayinRequest) Reference() string {
	if p.ProviderOrderID.Valid && p.ProviderOrderID.String != "" {
		return p.ProviderOrderID.String
	}
	return p.ID.String()
}

// Result is what the orchestrator hands back for a create call.
type Result struct {
	Payin    *PayinRequest
	Replay   bool
	Attempts int
	Warnings []string
}
