package webhook

import (
	"context"

	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/domain/payin"
)

// Locator finds candidate payins for a callback. A tier matches only when it
// returns exactly one candidate.
type Locator interface {
	Locate(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error)

func (f LocatorFunc) Locate(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error) {
	return f(ctx, p)
}

// Tier is a named lookup strategy.
type Tier struct {
	Name    string
	Locator Locator
}

const (
	TierOrderID = "order_id"
	TierPayinID = "payin_id"
	TierContact = "contact_amount"
)

// maxContactCandidates bounds the contact query; two is enough to see ambiguity.
const maxContactCandidates = 2

// DefaultTiers returns the lookup order: provider order id, internal payin id,
// then requester email with amount among pending payins.
func DefaultTiers(repo payin.Repository) []Tier {
	return []Tier{
		{Name: TierOrderID, Locator: LocatorFunc(func(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error) {
			if p.OrderID == "" {
				return nil, nil
			}
			return one(repo.GetByProviderOrderID(ctx, p.OrderID))
		})},
		{Name: TierPayinID, Locator: LocatorFunc(func(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error) {
			id, err := uuid.Parse(p.PayinID)
			if err != nil {
				return nil, nil
			}
			return one(repo.GetByID(ctx, id))
		})},
		{Name: TierContact, Locator: LocatorFunc(func(ctx context.Context, p *Payload) ([]*payin.PayinRequest, error) {
			if p.Email == "" || !p.Amount.Valid {
				return nil, nil
			}
			return repo.FindPendingByContact(ctx, p.Email, p.Amount.Decimal, maxContactCandidates)
		})},
	}
}

func one(p *payin.PayinRequest, err error) ([]*payin.PayinRequest, error) {
	if err != nil || p == nil {
		return nil, err
	}
	return []*payin.PayinRequest{p}, nil
}
