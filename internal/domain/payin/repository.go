package payin

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 5 * time.Second

// Repository defines payin data access. Lookups return nil, nil when nothing matches.
type Repository interface {
	Create(ctx context.Context, p *PayinRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*PayinRequest, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*PayinRequest, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (*PayinRequest, error)
	FindPendingByContact(ctx context.Context, email string, amount decimal.Decimal, limit int) ([]*PayinRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PayinRequest, error)
	// Transition moves a payin to next only from one of the from states and
	// stamps the webhook-received flag. It reports whether a row changed.
	Transition(ctx context.Context, id uuid.UUID, from []Status, next Status) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payin repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const payinColumns = `
	id, user_id, user_email, amount, currency, country, payment_method, description,
	status, source, provider_order_id, payment_url, idempotency_key, quoted_amount,
	retry_count, last_error, webhook_received, webhook_received_at, created_at, updated_at`

func (r *repository) Create(ctx context.Context, p *PayinRequest) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO payin_requests (
			id, user_id, user_email, amount, currency, country, payment_method, description,
			status, source, provider_order_id, payment_url, idempotency_key, quoted_amount,
			retry_count, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		RETURNING created_at, updated_at
	`
	now := time.Now().UTC()
	err := r.db.QueryRowxContext(ctx, query,
		p.ID,
		p.UserID,
		p.UserEmail,
		p.Amount,
		p.Currency,
		p.Country,
		p.PaymentMethod,
		p.Description,
		p.Status,
		p.Source,
		p.ProviderOrderID,
		p.PaymentURL,
		p.IdempotencyKey,
		p.QuotedAmount,
		p.RetryCount,
		p.LastError,
		now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "idempotency_key") {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

func (r *repository) getOne(ctx context.Context, where string, arg interface{}) (*PayinRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p PayinRequest
	err := r.db.GetContext(ctx, &p, `SELECT `+payinColumns+` FROM payin_requests WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*PayinRequest, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (*PayinRequest, error) {
	return r.getOne(ctx, `idempotency_key = $1`, key)
}

func (r *repository) GetByProviderOrderID(ctx context.Context, orderID string) (*PayinRequest, error) {
	return r.getOne(ctx, `provider_order_id = $1`, orderID)
}

func (r *repository) FindPendingByContact(ctx context.Context, email string, amount decimal.Decimal, limit int) ([]*PayinRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + payinColumns + `
		FROM payin_requests
		WHERE lower(user_email) = lower($1) AND amount = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT $3
	`
	var out []*PayinRequest
	err := r.db.SelectContext(ctx, &out, query, email, amount, limit)
	return out, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PayinRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + payinColumns + `
		FROM payin_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var out []*PayinRequest
	err := r.db.SelectContext(ctx, &out, query, userID, limit, offset)
	return out, err
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []Status, next Status) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payin_requests
		SET status = $2,
		    webhook_received = TRUE,
		    webhook_received_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, next, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
