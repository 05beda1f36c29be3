package provider

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfflinePrefix marks order ids minted without the provider.
const OfflinePrefix = "offline_"

const offlineRatesTTL = time.Hour

// OfflineClient serves payins without leaving the process.
type OfflineClient struct {
	now func() time.Time
}

// NewOfflineClient creates the synthetic adapter used in offline mode.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{now: time.Now}
}

func (c *OfflineClient) Name() string { return NameOffline }

func (c *OfflineClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	return &Order{
		OrderID:  OfflinePrefix + uuid.New().String(),
		Status:   "pending",
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (c *OfflineClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if !strings.HasPrefix(orderID, OfflinePrefix) {
		return nil, ErrOrderNotFound
	}
	return &Order{OrderID: orderID, Status: "pending"}, nil
}

// GetRates returns a flat table: 2.9% off the amount plus a per-method fee.
func (c *OfflineClient) GetRates(ctx context.Context, market string) (*RateTable, error) {
	return &RateTable{
		Market:    market,
		Currency:  "USD",
		SellPrice: decimal.RequireFromString("0.971"),
		FixedCosts: map[string]decimal.Decimal{
			"CARD":          decimal.RequireFromString("0.30"),
			"BANK_TRANSFER": decimal.RequireFromString("0.50"),
			"PSE":           decimal.RequireFromString("0.25"),
		},
		ExpiresAt: c.now().Add(offlineRatesTTL),
	}, nil
}
