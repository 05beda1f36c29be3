package webhook

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/payin"
)

// EventKind is the closed set of callbacks the reconciler understands.
type EventKind string

const (
	KindCompleted  EventKind = "payin.completed"
	KindProcessing EventKind = "payin.processing"
	KindFailed     EventKind = "payin.failed"
	KindRejected   EventKind = "payin.rejected"
	KindExpired    EventKind = "payin.expired"
	KindUnknown    EventKind = "unknown"
)

// TargetStatus is the payin status a kind drives to. ok is false for KindUnknown.
func (k EventKind) TargetStatus() (status payin.Status, ok bool) {
	switch k {
	case KindCompleted:
		return payin.StatusCompleted, true
	case KindProcessing:
		return payin.StatusProcessing, true
	case KindFailed:
		return payin.StatusFailed, true
	case KindRejected:
		return payin.StatusRejected, true
	case KindExpired:
		return payin.StatusExpired, true
	case KindUnknown:
		return "", false
	}
	return "", false
}

// AuditStatus is the processing outcome stored on a webhook event.
type AuditStatus string

const (
	AuditProcessed AuditStatus = "processed"
	AuditPending   AuditStatus = "pending"
	AuditFailed    AuditStatus = "failed"
)

// Payload is the provider callback body.
type Payload struct {
	EventID  string              `json:"eventId"`
	Event    string              `json:"event"`
	Status   string              `json:"status"`
	PayinID  string              `json:"payinId"`
	OrderID  string              `json:"orderId"`
	Email    string              `json:"email"`
	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency"`
}

// ParsePayload decodes a callback body.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	p.Event = strings.ToLower(strings.TrimSpace(p.Event))
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	p.PayinID = strings.TrimSpace(p.PayinID)
	p.OrderID = strings.TrimSpace(p.OrderID)
	p.Email = strings.TrimSpace(p.Email)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	return &p, nil
}

// knownStatuses is the provider vocabulary; anything outside it is KindUnknown.
var knownStatuses = map[string]bool{
	"completed": true, "success": true, "sent": true,
	"pending": true, "checking": true, "processing": true,
	"failed": true, "failure": true, "error": true, "declined": true, "cancelled": true, "canceled": true,
	"rejected": true,
	"expired": true,
}

// Classify resolves a payload to an EventKind. Only payin events with a
// recognised status map to a concrete kind.
func Classify(p *Payload) EventKind {
	if p.Event != "" && !strings.HasPrefix(p.Event, "payin.") && p.Event != "payin" {
		return KindUnknown
	}
	if !knownStatuses[p.Status] {
		return KindUnknown
	}

	switch payin.MapProviderStatus(p.Status) {
	case payin.StatusCompleted:
		return KindCompleted
	case payin.StatusProcessing:
		return KindProcessing
	case payin.StatusRejected:
		return KindRejected
	case payin.StatusExpired:
		return KindExpired
	default:
		return KindFailed
	}
}

// Event is one audited callback. Append-only.
type Event struct {
	ID             uuid.UUID      `db:"id"`
	EventType      string         `db:"event_type"`
	Kind           EventKind      `db:"event_kind"`
	ProviderStatus string         `db:"provider_status"`
	PayinID        uuid.NullUUID  `db:"payin_id"`
	OrderID        sql.NullString `db:"order_id"`
	LookupTier     sql.NullString `db:"lookup_tier"`
	RawPayload     string         `db:"raw_payload"`
	Status         AuditStatus    `db:"status"`
	SignatureValid bool           `db:"signature_valid"`
	ErrorMessage   sql.NullString `db:"error_message"`
	ArchiveKey     sql.NullString `db:"archive_key"`
	CreatedAt      time.Time      `db:"created_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
