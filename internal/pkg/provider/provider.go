package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Adapter names.
const (
	NameHTTP    = "provider"
	NameOffline = "offline"
)

var (
	// ErrProviderTimeout marks an attempt that ran out of time.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderFailure marks a transport error or a 5xx answer.
	ErrProviderFailure = errors.New("provider failure")
	// ErrProviderRejected marks a 4xx answer; retrying will not help.
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrOrderNotFound is returned when the provider does not know an order.
	ErrOrderNotFound = errors.New("provider order not found")
)

// Client is the Provider Adapter: stateless calls to the external payment provider.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetRates(ctx context.Context, market string) (*RateTable, error)
	Name() string
}

// CreateOrderRequest is what the provider needs to open a payment order.
type CreateOrderRequest struct {
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"-"`
	UserID         string          `json:"userId"`
	UserEmail      string          `json:"userEmail"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Country        string          `json:"country"`
	PaymentMethod  string          `json:"paymentMethod"`
	Description    string          `json:"description,omitempty"`
}

// Order is the provider's view of a payment order.
type Order struct {
	OrderID    string          `json:"orderId"`
	PaymentURL string          `json:"paymentUrl,omitempty"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
}

// RateTable holds provider fees for one market until ExpiresAt.
type RateTable struct {
	Market     string                     `json:"market"`
	Currency   string                     `json:"currency"`
	SellPrice  decimal.Decimal            `json:"sellPrice"`
	FixedCosts map[string]decimal.Decimal `json:"fixedCosts"`
	ExpiresAt  time.Time                  `json:"expiresAt"`
}

// FixedCost returns the flat fee for method, zero when the table has none.
func (t *RateTable) FixedCost(method string) decimal.Decimal {
	if t == nil || t.FixedCosts == nil {
		return decimal.Zero
	}
	if cost, ok := t.FixedCosts[method]; ok {
		return cost
	}
	return decimal.Zero
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderTimeout) || errors.Is(err, ErrProviderFailure)
}
