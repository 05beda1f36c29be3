package payin

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatePayinRequest is the POST /payins body.
type CreatePayinRequest struct {
	UserID         uuid.UUID       `json:"userId" validate:"required"`
	UserEmail      string          `json:"userEmail" validate:"required,email,max=254"`
	Amount         decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Currency       string          `json:"currency" validate:"required,iso_currency"`
	Country        string          `json:"country" validate:"required,iso_country"`
	PaymentMethod  string          `json:"paymentMethod" validate:"required,payment_method"`
	Description    string          `json:"description" validate:"max=500"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"max=128"`
}

// Normalize trims input and upper-cases the code fields.
func (r *CreatePayinRequest) Normalize() {
	r.UserEmail = strings.TrimSpace(r.UserEmail)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.PaymentMethod = strings.ToUpper(strings.TrimSpace(r.PaymentMethod))
	r.Description = strings.TrimSpace(r.Description)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

// CreatePayinResponse is returned by POST /payins.
type CreatePayinResponse struct {
	PayinID         uuid.UUID        `json:"payinId"`
	ProviderOrderID *string          `json:"providerOrderId"`
	PaymentURL      string           `json:"paymentUrl,omitempty"`
	Status          Status           `json:"status"`
	Source          Source           `json:"source"`
	Replay          bool             `json:"replay"`
	QuotedAmount    *decimal.Decimal `json:"quotedAmount,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// PayinResponse is the GET projection of a PayinRequest.
type PayinResponse struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"userId"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	Country           string           `json:"country"`
	PaymentMethod     string           `json:"paymentMethod"`
	Description       string           `json:"description,omitempty"`
	Status            Status           `json:"status"`
	Source            Source           `json:"source"`
	ProviderOrderID   *string          `json:"providerOrderId"`
	PaymentURL        string           `json:"paymentUrl,omitempty"`
	QuotedAmount      *decimal.Decimal `json:"quotedAmount,omitempty"`
	RetryCount        int              `json:"retryCount"`
	LastError         string           `json:"lastError,omitempty"`
	WebhookReceived   bool             `json:"webhookReceived"`
	WebhookReceivedAt *time.Time       `json:"webhookReceivedAt,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// ProviderStatusResponse is returned by GET /payins/{id}/provider-status.
type ProviderStatusResponse struct {
	PayinID        uuid.UUID `json:"payinId"`
	OrderID        string    `json:"orderId"`
	LocalStatus    Status    `json:"localStatus"`
	ProviderStatus string    `json:"providerStatus"`
	MappedStatus   Status    `json:"mappedStatus"`
}

func NewCreatePayinResponse(res *Result) CreatePayinResponse {
	p := res.Payin
	out := CreatePayinResponse{
		PayinID:         p.ID,
		ProviderOrderID: nullableString(p.ProviderOrderID.String, p.ProviderOrderID.Valid),
		PaymentURL:      p.PaymentURL.String,
		Status:          p.Status,
		Source:          p.Source,
		Replay:          res.Replay,
		Warnings:        res.Warnings,
	}
	if p.QuotedAmount.Valid {
		q := p.QuotedAmount.Decimal
		out.QuotedAmount = &q
	}
	return out
}

func NewPayinResponse(p *PayinRequest) PayinResponse {
	out := PayinResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Country:         p.Country,
		PaymentMethod:   p.PaymentMethod,
		Description:     p.Description.String,
		Status:          p.Status,
		Source:          p.Source,
		ProviderOrderID: nullableString(p.ProviderOrderID.String, p.ProviderOrderID.Valid),
		PaymentURL:      p.PaymentURL.String,
		RetryCount:      p.RetryCount,
		LastError:       p.LastError.String,
		WebhookReceived: p.WebhookReceived,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.QuotedAmount.Valid {
		q := p.QuotedAmount.Decimal
		out.QuotedAmount = &q
	}
	if p.WebhookReceivedAt.Valid {
		ts := p.WebhookReceivedAt.Time
		out.WebhookReceivedAt = &ts
	}
	return out
}

func nullableString(s string, valid bool) *string {
	if !valid || s == "" {
		return nil
	}
	return &s
}
