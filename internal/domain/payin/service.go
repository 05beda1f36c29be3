package payin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/pricing"
	"github.com/mwork/payin-api/internal/pkg/metrics"
	"github.com/mwork/payin-api/internal/pkg/provider"
	"github.com/mwork/payin-api/internal/pkg/validator"
)

const (
	maxAmountScale = 8
	maxListLimit   = 200
)

// Quoter prices a payin; *pricing.Cache satisfies it.
type Quoter interface {
	Quote(ctx context.Context, amount decimal.Decimal, market, method string) (*pricing.Quote, error)
}

// Service is the payin orchestrator.
type Service struct {
	repo   Repository
	guard  *Guard
	client provider.Client
	policy provider.RetryPolicy
	quoter Quoter
	newID  func() uuid.UUID
}

// NewService creates the orchestrator. quoter may be nil.
func NewService(repo Repository, guard *Guard, client provider.Client, policy provider.RetryPolicy, quoter Quoter) *Service {
	return &Service{
		repo:   repo,
		guard:  guard,
		client: client,
		policy: policy,
		quoter: quoter,
		newID:  uuid.New,
	}
}

// Create validates the request, collapses replays onto the stored payin,
// opens a provider order under the retry policy and persists the result.
// Provider exhaustion degrades to a fallback record instead of failing.
func (s *Service) Create(ctx context.Context, req CreatePayinRequest) (*Result, error) {
	req.Normalize()

	if errs := validator.Validate(&req); errs != nil {
		return nil, &ValidationError{Fields: errs}
	}
	if -req.Amount.Exponent() > maxAmountScale {
		return nil, &ValidationError{Fields: map[string]string{"amount": "At most 8 decimal places"}}
	}

	key := IdempotencyKey(req.UserID, req.Amount, req.IdempotencyKey)
	if res, err := s.replay(ctx, key, &req); res != nil || err != nil {
		return res, err
	}
	if err := CheckMarket(req.Country, req.Currency, req.PaymentMethod); err != nil {
		return nil, err
	}

	release, err := s.guard.Begin(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	// A concurrent create may have committed between the first lookup and the lock.
	if res, err := s.replay(ctx, key, &req); res != nil || err != nil {
		return res, err
	}

	p := &PayinRequest{
		ID:             s.newID(),
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Country:        req.Country,
		PaymentMethod:  req.PaymentMethod,
		Description:    sql.NullString{String: req.Description, Valid: req.Description != ""},
		Status:         StatusPending,
		IdempotencyKey: key,
	}
	result := &Result{Payin: p}

	// Caller cancellation neither shortens the retry budget nor skips persistence.
	detached := context.WithoutCancel(ctx)
	s.quote(detached, p, result)
	s.openOrder(detached, p, result)

	if err := s.repo.Create(detached, p); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			if res, lookupErr := s.replay(detached, key, &req); res != nil || lookupErr != nil {
				return res, lookupErr
			}
		}
		metrics.PayinPersistFailures.Inc()
		log.Error().
			Err(err).
			Str("payin_id", p.ID.String()).
			Str("provider_order_id", p.ProviderOrderID.String).
			Str("source", string(p.Source)).
			Msg("Failed to persist payin request")
	}

	metrics.PayinsCreated.WithLabelValues(string(p.Source), metrics.Bool(false)).Inc()
	log.Info().
		Str("payin_id", p.ID.String()).
		Str("user_id", p.UserID.String()).
		Str("amount", p.Amount.String()).
		Str("currency", p.Currency).
		Str("country", p.Country).
		Str("source", string(p.Source)).
		Int("attempts", result.Attempts).
		Msg("Payin created")

	return result, nil
}

func (s *Service) replay(ctx context.Context, key string, req *CreatePayinRequest) (*Result, error) {
	existing, err := s.guard.Lookup(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Idempotency lookup failed, treating request as new")
		return nil, nil
	}
	if existing == nil {
		return nil, nil
	}
	if existing.Currency != req.Currency || existing.Country != req.Country || existing.PaymentMethod != req.PaymentMethod {
		return nil, ErrIdempotencyConflict
	}

	metrics.PayinsCreated.WithLabelValues(string(existing.Source), metrics.Bool(true)).Inc()
	log.Info().Str("payin_id", existing.ID.String()).Msg("Idempotent payin replay")
	return &Result{Payin: existing, Replay: true}, nil
}

func (s *Service) quote(ctx context.Context, p *PayinRequest, result *Result) {
	if s.quoter == nil {
		return
	}
	q, err := s.quoter.Quote(ctx, p.Amount, p.Country, p.PaymentMethod)
	if err != nil {
		log.Warn().Err(err).Str("market", p.Country).Msg("Quote unavailable for payin")
		result.Warnings = append(result.Warnings, WarningPricingUnavailable)
		return
	}
	p.QuotedAmount = decimal.NewNullDecimal(q.Final)
	if q.Stale {
		result.Warnings = append(result.Warnings, WarningPricingStale)
	}
}

func (s *Service) openOrder(ctx context.Context, p *PayinRequest, result *Result) {
	orderReq := provider.CreateOrderRequest{
		Reference:      p.ID.String(),
		IdempotencyKey: p.IdempotencyKey,
		UserID:         p.UserID.String(),
		UserEmail:      p.UserEmail,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Country:        p.Country,
		PaymentMethod:  p.PaymentMethod,
		Description:    p.Description.String,
	}

	var order *provider.Order
	attempts, err := s.policy.Do(ctx, "create_order", func(ctx context.Context) error {
		var createErr error
		order, createErr = s.client.CreateOrder(ctx, orderReq)
		return createErr
	})
	result.Attempts = attempts
	if attempts > 0 {
		p.RetryCount = attempts - 1
	}

	if err != nil {
		p.Source = SourceFallback
		p.LastError = sql.NullString{String: truncate(err.Error(), 1000), Valid: true}
		warning := WarningProviderUnavailable
		if errors.Is(err, provider.ErrProviderRejected) {
			warning = WarningProviderRejected
		}
		result.Warnings = append(result.Warnings, warning)
		log.Warn().
			Err(err).
			Str("payin_id", p.ID.String()).
			Int("attempts", attempts).
			Msg("Provider unavailable, recording fallback payin")
		return
	}

	p.Source = SourceLive
	if s.client.Name() == provider.NameOffline {
		p.Source = SourceSynthetic
	}
	p.ProviderOrderID = sql.NullString{String: order.OrderID, Valid: true}
	p.PaymentURL = sql.NullString{String: order.PaymentURL, Valid: order.PaymentURL != ""}
}

// Get returns a payin visible to the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID, callerID uuid.UUID, privileged bool) (*PayinRequest, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payin: %w", err)
	}
	if p == nil || (!privileged && p.UserID != callerID) {
		return nil, ErrPayinNotFound
	}
	return p, nil
}

// List returns the user's payins, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PayinRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ProviderStatus asks the provider for its view of the payin's order. Read-only.
func (s *Service) ProviderStatus(ctx context.Context, p *PayinRequest) (*ProviderStatusResponse, error) {
	if !p.ProviderOrderID.Valid || p.ProviderOrderID.String == "" {
		return nil, provider.ErrOrderNotFound
	}

	var order *provider.Order
	_, err := provider.Single(s.policy.Timeout).Do(ctx, "get_order", func(ctx context.Context) error {
		var getErr error
		order, getErr = s.client.GetOrder(ctx, p.ProviderOrderID.String)
		return getErr
	})
	if err != nil {
		return nil, err
	}

	return &ProviderStatusResponse{
		PayinID:        p.ID,
		OrderID:        p.ProviderOrderID.String,
		LocalStatus:    p.Status,
		ProviderStatus: order.Status,
		MappedStatus:   MapProviderStatus(order.Status),
	}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
