package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 5 * time.Second

// Repository stores the webhook audit trail.
type Repository interface {
	Record(ctx context.Context, e *Event) error
	ListByPayin(ctx context.Context, payinID uuid.UUID) ([]*Event, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Record(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO webhook_events (
			id, event_type, event_kind, provider_status, payin_id, order_id, lookup_tier,
			raw_payload, status, signature_valid, error_message, archive_key
		)
		VALUES (:id, :event_type, :event_kind, :provider_status, :payin_id, :order_id, :lookup_tier,
			:raw_payload, :status, :signature_valid, :error_message, :archive_key)
		RETURNING created_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, e)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&e.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *repository) ListByPayin(ctx context.Context, payinID uuid.UUID) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Event
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, event_type, event_kind, provider_status, payin_id, order_id, lookup_tier,
		       raw_payload, status, signature_valid, error_message, archive_key, created_at
		FROM webhook_events
		WHERE payin_id = $1
		ORDER BY created_at
	`, payinID)
	return out, err
}
