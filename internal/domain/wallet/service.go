package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/payin-api/internal/domain/payin"
	"github.com/mwork/payin-api/internal/pkg/metrics"
)

const maxLedgerPage = 200

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Settle credits a completed payin to its owner's wallet at most once.
// Inconsistencies are logged as critical and always returned.
func (s *Service) Settle(ctx context.Context, p *payin.PayinRequest) (*Settlement, error) {
	res, err := s.repo.Settle(ctx, p)
	switch {
	case err == nil:
		metrics.Settlements.WithLabelValues("credited").Inc()
		log.Info().
			Str("payin_id", p.ID.String()).
			Str("wallet_id", res.WalletID.String()).
			Str("ledger_entry_id", res.LedgerEntryID.String()).
			Str("amount", p.Amount.String()).
			Str("currency", p.Currency).
			Str("balance", res.Balance.String()).
			Msg("Payin settled")
		return res, nil
	case errors.Is(err, ErrAlreadySettled):
		metrics.Settlements.WithLabelValues("replay").Inc()
		log.Info().Str("payin_id", p.ID.String()).Msg("Payin already settled, skipping credit")
		return nil, err
	case errors.Is(err, ErrSettlementInconsistency):
		metrics.Settlements.WithLabelValues("error").Inc()
		metrics.SettlementInconsistencies.Inc()
		log.Error().
			Err(err).
			Bool("alert", true).
			Str("severity", "critical").
			Str("payin_id", p.ID.String()).
			Str("user_id", p.UserID.String()).
			Str("amount", p.Amount.String()).
			Str("currency", p.Currency).
			Msg("Settlement inconsistency")
		return nil, err
	default:
		metrics.Settlements.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("payin_id", p.ID.String()).Msg("Settlement failed")
		return nil, fmt.Errorf("settle payin %s: %w", p.ID, err)
	}
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Wallet, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns a wallet visible to the caller.
func (s *Service) Get(ctx context.Context, id, callerID uuid.UUID, privileged bool) (*Wallet, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil || (!privileged && w.OwnerID != callerID) {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

func (s *Service) Ledger(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxLedgerPage {
		limit = maxLedgerPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEntries(ctx, walletID, limit, offset)
}

// Verify checks sum(ledger) == balance for one wallet. A mismatch returns the
// audit together with ErrSettlementInconsistency.
func (s *Service) Verify(ctx context.Context, walletID uuid.UUID) (*Audit, error) {
	a, err := s.repo.Audit(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrWalletNotFound
	}
	if !a.Consistent() {
		reportMismatch(a)
		return a, ErrSettlementInconsistency
	}
	return a, nil
}

// VerifyAll audits every wallet and returns the inconsistent ones.
func (s *Service) VerifyAll(ctx context.Context) (checked int, broken []*Audit, err error) {
	audits, err := s.repo.AuditAll(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, a := range audits {
		if !a.Consistent() {
			reportMismatch(a)
			broken = append(broken, a)
		}
	}
	return len(audits), broken, nil
}

func reportMismatch(a *Audit) {
	metrics.SettlementInconsistencies.Inc()
	log.Error().
		Bool("alert", true).
		Str("severity", "critical").
		Str("wallet_id", a.WalletID.String()).
		Str("balance", a.Balance.String()).
		Str("ledger_sum", a.LedgerSum.String()).
		Msg("Wallet balance does not match ledger")
}
