package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexusai/auditoria/internal/model"
)

// ErrSessionNotFound is returned when no row matches.
var ErrSessionNotFound = errors.New("payment session not found")

// PaymentSessionRepository wraps all SQL used by the API and the worker.
type PaymentSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentSessionRepository constructs a repository.
func NewPaymentSessionRepository(pool *pgxpool.Pool) *PaymentSessionRepository {
	return &PaymentSessionRepository{pool: pool}
}

// Create inserts a pending session right after Flow issued its token.
func (r *PaymentSessionRepository) Create(ctx context.Context, s *model.PaymentSession) error {
	now := time.Now().UTC()
	if s.State == "" {
		s.State = model.SessionPending
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_sessions (order_id, token, status, amount, currency, email, file_name, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.OrderID, s.Token, s.State, s.Amount, s.Currency, s.Email, s.FileName, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment session: %w", err)
	}
	return nil
}

// GetByToken returns the session for a provider token.
func (r *PaymentSessionRepository) GetByToken(ctx context.Context, token string) (*model.PaymentSession, error) {
	var (
		s           model.PaymentSession
		deliveredAt sql.NullTime
	)
	row := r.pool.QueryRow(ctx, `
		SELECT order_id, token, status, amount, currency, email, file_name, created_at, updated_at, delivered_at
		FROM payment_sessions WHERE token=$1
	`, token)
	if err := row.Scan(&s.OrderID, &s.Token, &s.State, &s.Amount, &s.Currency, &s.Email, &s.FileName, &s.CreatedAt, &s.UpdatedAt, &deliveredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select payment session: %w", err)
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		s.DeliveredAt = &t
	}
	return &s, nil
}

// UpdateState records a provider status change. Delivered sessions keep
// their state.
func (r *PaymentSessionRepository) UpdateState(ctx context.Context, orderID string, state model.SessionState) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_sessions
		SET status=$1, updated_at=$2
		WHERE order_id=$3 AND status <> 'delivered'
	`, state, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("update payment session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, orderID)
	}
	return nil
}

// MarkDelivered stamps the session once the paid report was returned.
func (r *PaymentSessionRepository) MarkDelivered(ctx context.Context, orderID string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_sessions
		SET status='delivered', delivered_at=$1, updated_at=$1
		WHERE order_id=$2
	`, now, orderID)
	if err != nil {
		return fmt.Errorf("mark payment session delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PaymentSessionRepository) exists(ctx context.Context, orderID string) error {
	var found bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_sessions WHERE order_id=$1)`, orderID).Scan(&found); err != nil {
		return fmt.Errorf("check payment session: %w", err)
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}
