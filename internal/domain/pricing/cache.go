package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mwork/payin-api/internal/pkg/metrics"
	"github.com/mwork/payin-api/internal/pkg/provider"
)

var (
	ErrRatesUnavailable = errors.New("rates unavailable")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// Fetcher loads a fresh rate table; provider.Client satisfies it.
type Fetcher interface {
	GetRates(ctx context.Context, market string) (*provider.RateTable, error)
}

// Rates is a cache read: the table plus whether it outlived its expiry.
type Rates struct {
	Table     *provider.RateTable
	FetchedAt time.Time
	ExpiresAt time.Time
	Stale     bool
}

// Quote is a priced amount for one market and method.
type Quote struct {
	Market    string          `json:"market"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	SellPrice decimal.Decimal `json:"sellPrice"`
	FixedCost decimal.Decimal `json:"fixedCost"`
	Final     decimal.Decimal `json:"finalAmount"`
	Stale     bool            `json:"stale"`
}

type entry struct {
	table     *provider.RateTable
	fetchedAt time.Time
	expiresAt time.Time
}

// Cache holds one rate table per market until its provider-declared expiry.
// Entries are replaced whole, so readers never see a partially refreshed table.
type Cache struct {
	fetcher     Fetcher
	policy      provider.RetryPolicy
	fallbackTTL time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	refresh singleflight.Group
}

// NewCache creates a pricing cache. fallbackTTL applies when the provider
// sends no usable expiry.
func NewCache(fetcher Fetcher, policy provider.RetryPolicy, fallbackTTL time.Duration) *Cache {
	if fallbackTTL <= 0 {
		fallbackTTL = 5 * time.Minute
	}
	return &Cache{
		fetcher:     fetcher,
		policy:      policy,
		fallbackTTL: fallbackTTL,
		now:         time.Now,
		entries:     make(map[string]entry),
	}
}

// GetRates returns the cached table for market, refreshing it when expired.
// A failed refresh serves the expired table, if any, and logs a warning.
func (c *Cache) GetRates(ctx context.Context, market string) (*Rates, error) {
	market = strings.ToUpper(strings.TrimSpace(market))
	now := c.now()

	c.mu.RLock()
	cached, ok := c.entries[market]
	c.mu.RUnlock()

	if ok && now.Before(cached.expiresAt) {
		metrics.PricingCache.WithLabelValues("hit").Inc()
		return cached.rates(false), nil
	}

	v, err, shared := c.refresh.Do(market, func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), market, now)
	})
	if err != nil {
		if ok {
			metrics.PricingCache.WithLabelValues("stale").Inc()
			log.Warn().
				Err(err).
				Str("market", market).
				Time("expired_at", cached.expiresAt).
				Msg("Rate refresh failed, serving stale table")
			return cached.rates(true), nil
		}
		metrics.PricingCache.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w for %s: %v", ErrRatesUnavailable, market, err)
	}

	if shared {
		metrics.PricingCache.WithLabelValues("shared").Inc()
	} else {
		metrics.PricingCache.WithLabelValues("refresh").Inc()
	}
	return v.(entry).rates(false), nil
}

// fetch loads one market from the provider and installs it. Concurrent
// misses for the same market share a single call.
func (c *Cache) fetch(ctx context.Context, market string, now time.Time) (entry, error) {
	var table *provider.RateTable
	_, err := c.policy.Do(ctx, "get_rates", func(ctx context.Context) error {
		var fetchErr error
		table, fetchErr = c.fetcher.GetRates(ctx, market)
		return fetchErr
	})
	if err != nil {
		return entry{}, err
	}

	fresh := entry{table: table, fetchedAt: now, expiresAt: table.ExpiresAt}
	if !fresh.expiresAt.After(now) {
		fresh.expiresAt = now.Add(c.fallbackTTL)
	}

	c.mu.Lock()
	c.entries[market] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// Quote prices amount for market and method against the cached table.
func (c *Cache) Quote(ctx context.Context, amount decimal.Decimal, market, method string) (*Quote, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	rates, err := c.GetRates(ctx, market)
	if err != nil {
		return nil, err
	}
	q := ComputeQuote(rates.Table, amount, strings.ToUpper(method))
	q.Stale = rates.Stale
	return q, nil
}

// Invalidate drops a market so the next read refetches it.
func (c *Cache) Invalidate(market string) {
	market = strings.ToUpper(strings.TrimSpace(market))
	c.mu.Lock()
	delete(c.entries, market)
	c.mu.Unlock()
}

// Refresh replaces a market's table with a fresh fetch. Unlike GetRates it
// never falls back to the previous table.
func (c *Cache) Refresh(ctx context.Context, market string) (*Rates, error) {
	c.Invalidate(market)
	return c.GetRates(ctx, market)
}

// ComputeQuote is final = amount * sellPrice - fixedCost, floored at zero.
func ComputeQuote(table *provider.RateTable, amount decimal.Decimal, method string) *Quote {
	fixed := table.FixedCost(method)
	final := amount.Mul(table.SellPrice).Sub(fixed)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return &Quote{
		Market:    table.Market,
		Method:    method,
		Amount:    amount,
		SellPrice: table.SellPrice,
		FixedCost: fixed,
		Final:     final,
	}
}

func (e entry) rates(stale bool) *Rates {
	return &Rates{Table: e.table, FetchedAt: e.fetchedAt, ExpiresAt: e.expiresAt, Stale: stale}
}
