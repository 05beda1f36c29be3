package webhook

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/payin"
	"github.com/mwork/payin-api/internal/domain/wallet"
	"github.com/mwork/payin-api/internal/pkg/storage"
)

type memoryPayins struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*payin.PayinRequest
}

func newMemoryPayins() *memoryPayins {
	return &memoryPayins{rows: map[uuid.UUID]*payin.PayinRequest{}}
}

func (m *memoryPayins) Create(ctx context.Context, p *payin.PayinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return payin.ErrDuplicateIdempotencyKey
		}
	}
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memoryPayins) GetByID(ctx context.Context, id uuid.UUID) (*payin.PayinRequest, error) {
	return m.find(func(p *payin.PayinRequest) bool { return p.ID == id }), nil
}

func (m *memoryPayins) GetByIdempotencyKey(ctx context.Context, key string) (*payin.PayinRequest, error) {
	return m.find(func(p *payin.PayinRequest) bool { return p.IdempotencyKey == key }), nil
}

func (m *memoryPayins) GetByProviderOrderID(ctx context.Context, orderID string) (*payin.PayinRequest, error) {
	return m.find(func(p *payin.PayinRequest) bool { return p.ProviderOrderID.Valid && p.ProviderOrderID.String == orderID }), nil
}

func (m *memoryPayins) FindPendingByContact(ctx context.Context, email string, amount decimal.Decimal, limit int) ([]*payin.PayinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payin.PayinRequest
	for _, p := range m.rows {
		if strings.EqualFold(p.UserEmail, email) && p.Amount.Equal(amount) && p.Status == payin.StatusPending && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryPayins) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*payin.PayinRequest, error) {
	return nil, nil
}

func (m *memoryPayins) Transition(ctx context.Context, id uuid.UUID, from []payin.Status, next payin.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
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

func (m *memoryPayins) find(match func(*payin.PayinRequest) bool) *payin.PayinRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if match(p) {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (m *memoryPayins) add(p *payin.PayinRequest) *payin.PayinRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.ID] = &cp
	return p
}

func (m *memoryPayins) status(id uuid.UUID) payin.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

// memorySettler mirrors the conditional claim of the SQL settlement.
type memorySettler struct {
	mu        sync.Mutex
	payins    *memoryPayins
	balances  map[string]decimal.Decimal
	credits   int
	err       error
	unbounded int
	cancelled int
}

func newMemorySettler(payins *memoryPayins) *memorySettler {
	return &memorySettler{payins: payins, balances: map[string]decimal.Decimal{}}
}

func (s *memorySettler) Settle(ctx context.Context, p *payin.PayinRequest) (*wallet.Settlement, error) {
	s.mu.Lock()
	if _, ok := ctx.Deadline(); !ok {
		s.unbounded++
	}
	if ctx.Err() != nil {
		s.cancelled++
	}
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	changed, _ := s.payins.Transition(ctx, p.ID, payin.SourcesFor(payin.StatusCompleted), payin.StatusCompleted)
	if !changed {
		if s.payins.status(p.ID) == payin.StatusCompleted {
			return nil, wallet.ErrAlreadySettled
		}
		return nil, wallet.ErrNotSettleable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.UserID.String() + "/" + p.Currency
	s.balances[key] = s.balances[key].Add(p.Amount)
	s.credits++
	return &wallet.Settlement{WalletID: uuid.New(), LedgerEntryID: uuid.New(), Balance: s.balances[key]}, nil
}

func (s *memorySettler) balance(userID uuid.UUID, currency string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID.String()+"/"+currency]
}

func (s *memorySettler) creditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

type memoryAudit struct {
	mu     sync.Mutex
	events []*Event
}

func (m *memoryAudit) Record(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt = time.Now()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *memoryAudit) ListByPayin(ctx context.Context, payinID uuid.UUID) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.events {
		if e.PayinID.Valid && e.PayinID.UUID == payinID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAudit) all() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	unbounded int
}

func (m *memoryStore) track(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok || ctx.Err() != nil {
		m.unbounded++
	}
}

func (m *memoryStore) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	m.track(ctx)
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.puts++
	return nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.track(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}
