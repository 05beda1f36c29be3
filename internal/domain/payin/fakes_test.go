package payin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/pricing"
	"github.com/mwork/payin-api/internal/pkg/provider"
)

type memoryRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*PayinRequest
	createErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[uuid.UUID]*PayinRequest{}}
}

func (m *memoryRepo) Create(ctx context.Context, p *PayinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*PayinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryRepo) GetByIdempotencyKey(ctx context.Context, key string) (*PayinRequest, error) {
	return m.find(func(p *PayinRequest) bool { return p.IdempotencyKey == key }), nil
}

func (m *memoryRepo) GetByProviderOrderID(ctx context.Context, orderID string) (*PayinRequest, error) {
	return m.find(func(p *PayinRequest) bool { return p.ProviderOrderID.Valid && p.ProviderOrderID.String == orderID }), nil
}

func (m *memoryRepo) FindPendingByContact(ctx context.Context, email string, amount decimal.Decimal, limit int) ([]*PayinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PayinRequest
	for _, p := range m.byID {
		if strings.EqualFold(p.UserEmail, email) && p.Amount.Equal(amount) && p.Status == StatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PayinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PayinRequest
	for _, p := range m.byID {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRepo) Transition(ctx context.Context, id uuid.UUID, from []Status, next Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if p.Status == s {
			p.Status = next
			p.WebhookReceived = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) find(match func(*PayinRequest) bool) *PayinRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if match(p) {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	name     string
	createFn func(ctx context.Context, req provider.CreateOrderRequest) (*provider.Order, error)
	order    *provider.Order
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return provider.NameHTTP
	}
	return f.name
}

func (f *fakeProvider) CreateOrder(ctx context.Context, req provider.CreateOrderRequest) (*provider.Order, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return &provider.Order{OrderID: "ord_" + req.Reference[:8], PaymentURL: "https://pay.example/" + req.Reference, Status: "pending"}, nil
}

func (f *fakeProvider) GetOrder(ctx context.Context, orderID string) (*provider.Order, error) {
	if f.order != nil {
		return f.order, nil
	}
	return nil, provider.ErrOrderNotFound
}

func (f *fakeProvider) GetRates(ctx context.Context, market string) (*provider.RateTable, error) {
	return nil, provider.ErrProviderFailure
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuoter struct {
	quote *pricing.Quote
	err   error
}

func (f *fakeQuoter) Quote(ctx context.Context, amount decimal.Decimal, market, method string) (*pricing.Quote, error) {
	return f.quote, f.err
}

type fakeLocker struct {
	held map[string]bool
	err  error
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	return func() { delete(f.held, key) }, true, nil
}

var errDatabaseDown = errors.New("database down")
