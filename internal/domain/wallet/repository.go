package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/payin"
)

const (
	queryTimeout  = 5 * time.Second
	settleTimeout = 10 * time.Second
)

// Repository defines wallet data access.
type Repository interface {
	// Settle marks the payin completed and credits its owner's wallet in one
	// transaction. A payin already completed yields ErrAlreadySettled.
	Settle(ctx context.Context, p *payin.PayinRequest) (*Settlement, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Wallet, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*LedgerEntry, error)
	Audit(ctx context.Context, walletID uuid.UUID) (*Audit, error)
	AuditAll(ctx context.Context) ([]*Audit, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *repository) Settle(ctx context.Context, p *payin.PayinRequest) (*Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The conditional update takes the payin row lock; a concurrent settle
	// blocks here and then matches nothing.
	if err := r.claimPayin(ctx, tx, p); err != nil {
		return nil, err
	}

	walletID, balance, err := r.credit(ctx, tx, p)
	if err != nil {
		if errors.Is(err, ErrWalletInactive) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: credit wallet: %v", ErrSettlementInconsistency, err)
	}

	var entryID uuid.UUID
	err = tx.GetContext(ctx, &entryID, `
		INSERT INTO wallet_ledger (wallet_id, payin_id, reference, amount, balance_after, movement_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, walletID, p.ID, p.Reference(), p.Amount, balance, MovementTypePayin)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadySettled
		}
		return nil, fmt.Errorf("%w: append ledger entry: %v", ErrSettlementInconsistency, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrSettlementInconsistency, err)
	}

	return &Settlement{WalletID: walletID, LedgerEntryID: entryID, Balance: balance}, nil
}

func (r *repository) claimPayin(ctx context.Context, tx *sqlx.Tx, p *payin.PayinRequest) error {
	from := payin.SourcesFor(payin.StatusCompleted)
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	var claimed uuid.UUID
	err := tx.GetContext(ctx, &claimed, `
		UPDATE payin_requests
		SET status = $2,
		    webhook_received = TRUE,
		    webhook_received_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING id
	`, p.ID, payin.StatusCompleted, pq.Array(states))
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var status payin.Status
	err = tx.GetContext(ctx, &status, `SELECT status FROM payin_requests WHERE id = $1`, p.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return payin.ErrPayinNotFound
	case err != nil:
		return err
	case status == payin.StatusCompleted:
		return ErrAlreadySettled
	default:
		return ErrNotSettleable
	}
}

func (r *repository) credit(ctx context.Context, tx *sqlx.Tx, p *payin.PayinRequest) (uuid.UUID, decimal.Decimal, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, currency, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (owner_id, currency) DO NOTHING
	`, p.UserID, p.Currency); err != nil {
		return uuid.Nil, decimal.Zero, err
	}

	var row struct {
		ID      uuid.UUID       `db:"id"`
		Balance decimal.Decimal `db:"balance"`
	}
	err := tx.GetContext(ctx, &row, `
		UPDATE wallets
		SET balance = balance + $3, updated_at = NOW()
		WHERE owner_id = $1 AND currency = $2 AND is_active
		RETURNING id, balance
	`, p.UserID, p.Currency, p.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, decimal.Zero, ErrWalletInactive
	}
	if err != nil {
		return uuid.Nil, decimal.Zero, err
	}
	return row.ID, row.Balance, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var w Wallet
	err := r.db.GetContext(ctx, &w, `
		SELECT id, owner_id, currency, balance, is_active, created_at, updated_at
		FROM wallets WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Wallet
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, owner_id, currency, balance, is_active, created_at, updated_at
		FROM wallets WHERE owner_id = $1
		ORDER BY currency
	`, ownerID)
	return out, err
}

func (r *repository) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*LedgerEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, wallet_id, payin_id, reference, amount, balance_after, movement_type, created_at
		FROM wallet_ledger
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	return out, err
}

const auditQuery = `
	SELECT w.id AS wallet_id, w.owner_id, w.currency, w.balance,
	       COALESCE(SUM(l.amount), 0) AS ledger_sum,
	       COUNT(l.id) AS entries
	FROM wallets w
	LEFT JOIN wallet_ledger l ON l.wallet_id = w.id
`

func (r *repository) Audit(ctx context.Context, walletID uuid.UUID) (*Audit, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Audit
	err := r.db.GetContext(ctx, &a, auditQuery+` WHERE w.id = $1 GROUP BY w.id`, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AuditAll scans every wallet. It runs without the per-query timeout.
func (r *repository) AuditAll(ctx context.Context) ([]*Audit, error) {
	var out []*Audit
	err := r.db.SelectContext(ctx, &out, auditQuery+` GROUP BY w.id ORDER BY w.created_at`)
	return out, err
}
