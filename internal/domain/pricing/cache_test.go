package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/jwt"
	"github.com/mwork/payin-api/internal/pkg/provider"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	err    error
	expiry time.Time
	gate   chan struct{}
}

func (f *fakeFetcher) GetRates(ctx context.Context, market string) (*provider.RateTable, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &provider.RateTable{
		Market:     market,
		Currency:   "USD",
		SellPrice:  decimal.RequireFromString("0.95"),
		FixedCosts: map[string]decimal.Decimal{"PSE": decimal.RequireFromString("2")},
		ExpiresAt:  f.expiry,
	}, nil
}

func newTestCache(f *fakeFetcher, now *time.Time) *Cache {
	c := NewCache(f, provider.Single(time.Second), time.Minute)
	c.now = func() time.Time { return *now }
	return c
}

func TestGetRatesCachesUntilExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{expiry: now.Add(10 * time.Minute)}
	c := newTestCache(f, &now)

	for i := 0; i < 3; i++ {
		if _, err := c.GetRates(context.Background(), "co"); err != nil {
			t.Fatalf("get rates: %v", err)
		}
	}
	if f.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", f.calls)
	}

	now = now.Add(11 * time.Minute)
	f.expiry = now.Add(10 * time.Minute)
	if _, err := c.GetRates(context.Background(), "CO"); err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("expected refetch after expiry, got %d calls", f.calls)
	}
}

func TestGetRatesServesStaleOnFailure(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{expiry: now.Add(time.Minute)}
	c := newTestCache(f, &now)

	if _, err := c.GetRates(context.Background(), "CO"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	now = now.Add(2 * time.Minute)
	f.err = provider.ErrProviderFailure
	rates, err := c.GetRates(context.Background(), "CO")
	if err != nil {
		t.Fatalf("expected stale table, got %v", err)
	}
	if !rates.Stale {
		t.Fatal("expected stale flag")
	}
}

func TestGetRatesWithoutCacheFails(t *testing.T) {
	now := time.Now()
	f := &fakeFetcher{err: provider.ErrProviderTimeout}
	c := newTestCache(f, &now)

	if _, err := c.GetRates(context.Background(), "MX"); !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable, got %v", err)
	}
}

func TestMissingExpiryUsesFallbackTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{}
	c := newTestCache(f, &now)

	rates, err := c.GetRates(context.Background(), "BR")
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if !rates.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected fallback expiry, got %v", rates.ExpiresAt)
	}
}

func TestComputeQuote(t *testing.T) {
	table := &provider.RateTable{
		Market:     "CO",
		SellPrice:  decimal.RequireFromString("0.95"),
		FixedCosts: map[string]decimal.Decimal{"PSE": decimal.RequireFromString("2.50")},
	}

	q := ComputeQuote(table, decimal.NewFromInt(1000), "PSE")
	if !q.Final.Equal(decimal.RequireFromString("947.5")) {
		t.Fatalf("expected 947.5, got %s", q.Final)
	}

	q = ComputeQuote(table, decimal.NewFromInt(1000), "CARD")
	if !q.Final.Equal(decimal.NewFromInt(950)) {
		t.Fatalf("expected 950 without fixed cost, got %s", q.Final)
	}

	q = ComputeQuote(table, decimal.NewFromInt(1), "PSE")
	if !q.Final.IsZero() {
		t.Fatalf("expected floor at zero, got %s", q.Final)
	}
}

func TestQuoteHandler(t *testing.T) {
	now := time.Now()
	f := &fakeFetcher{expiry: now.Add(time.Hour)}
	h := NewHandler(newTestCache(f, &now))

	req := httptest.NewRequest(http.MethodGet, "/CO/quote?amount=100&method=pse", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/CO/quote?amount=-1&method=PSE", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/COL/rates", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed market, got %d", rec.Code)
	}
	if f.calls != 1 {
		t.Fatalf("expected no fetch for malformed market, got %d calls", f.calls)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{expiry: now.Add(time.Hour), gate: make(chan struct{})}
	c := newTestCache(f, &now)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetRates(context.Background(), "CO"); err != nil {
				errs <- err
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("get rates: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected concurrent misses to share 1 fetch, got %d", f.calls)
	}
}

func TestRefreshHandlerRequiresPrivilegedRole(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{expiry: now.Add(time.Hour)}
	c := newTestCache(f, &now)
	if _, err := c.GetRates(context.Background(), "CO"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	routes := NewHandler(c).Routes()

	refresh := func(role string) int {
		req := httptest.NewRequest(http.MethodPost, "/CO/refresh", nil)
		req = req.WithContext(middleware.WithIdentity(context.Background(), uuid.New(), role))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := refresh(jwt.RoleUser); code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", code)
	}
	if f.calls != 1 {
		t.Fatalf("expected no fetch on forbidden refresh, got %d calls", f.calls)
	}
	if code := refresh(jwt.RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
	if f.calls != 2 {
		t.Fatalf("expected refresh to bypass a fresh cache entry, got %d calls", f.calls)
	}

	f.err = provider.ErrProviderFailure
	if code := refresh(jwt.RoleService); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when refresh fails, got %d", code)
	}
}
