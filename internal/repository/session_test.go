package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusai/auditoria/internal/database"
	"github.com/nexusai/auditoria/internal/model"
)

// newTestRepository connects to TEST_DATABASE_URL and skips when it is unset.
func newTestRepository(t *testing.T) *PaymentSessionRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return NewPaymentSessionRepository(pool)
}

func newSession(t *testing.T, repo *PaymentSessionRepository) *model.PaymentSession {
	t.Helper()
	id := uuid.NewString()
	s := &model.PaymentSession{
		OrderID:  "audit_" + id,
		Token:    "tok_" + id,
		Amount:   5990,
		Currency: "CLP",
		Email:    "buyer@example.cl",
		FileName: "contrato.pdf",
	}
	require.NoError(t, repo.Create(context.Background(), s))
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(context.Background(), `DELETE FROM payment_sessions WHERE order_id=$1`, s.OrderID)
	})
	return s
}

func TestCreateAndGetByToken(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	s := newSession(t, repo)

	got, err := repo.GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.OrderID, got.OrderID)
	assert.Equal(t, model.SessionPending, got.State)
	assert.Equal(t, int64(5990), got.Amount)
	assert.Equal(t, "contrato.pdf", got.FileName)
	assert.Nil(t, got.DeliveredAt)

	_, err = repo.GetByToken(ctx, "tok_missing_"+uuid.NewString())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateStateTransitions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		deliver bool
		next    model.SessionState
		want    model.SessionState
	}{
		{"pending to paid", false, model.SessionPaid, model.SessionPaid},
		{"pending to rejected", false, model.SessionRejected, model.SessionRejected},
		{"delivered stays delivered", true, model.SessionPending, model.SessionDelivered},
		{"delivered ignores voided", true, model.SessionVoided, model.SessionDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, repo)
			if tt.deliver {
				require.NoError(t, repo.MarkDelivered(ctx, s.OrderID))
			}
			require.NoError(t, repo.UpdateState(ctx, s.OrderID, tt.next))

			got, err := repo.GetByToken(ctx, s.Token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, tt.deliver, got.DeliveredAt != nil)
		})
	}
}

func TestUnknownOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	missing := "audit_missing_" + uuid.NewString()

	assert.ErrorIs(t, repo.UpdateState(ctx, missing, model.SessionPaid), ErrSessionNotFound)
	assert.ErrorIs(t, repo.MarkDelivered(ctx, missing), ErrSessionNotFound)
}
