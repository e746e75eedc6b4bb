package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/model"
	"github.com/nexusai/auditoria/internal/queue"
	"github.com/nexusai/auditoria/internal/repository"
)

// StatusSource looks up a checkout at the payment provider.
type StatusSource interface {
	GetStatus(ctx context.Context, token string) (*flow.StatusResponse, error)
}

// SessionUpdater persists the provider status of a checkout.
type SessionUpdater interface {
	UpdateState(ctx context.Context, orderID string, state model.SessionState) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	flow     StatusSource
	sessions SessionUpdater
}

// NewProcessor constructs a worker processor.
func NewProcessor(flow StatusSource, sessions SessionUpdater) *Processor {
	return &Processor{flow: flow, sessions: sessions}
}

// Handler registers the confirmation job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ConfirmPaymentTask, p.handleConfirm)
	return mux
}

func (p *Processor) handleConfirm(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeConfirm(task)
	if err != nil {
		return err
	}
	status, err := p.flow.GetStatus(ctx, payload.Token)
	if err != nil {
		var apiErr *flow.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			// Flow rejected the token itself; retrying cannot help.
			logger.Warn(ctx, "confirm rejected by provider", "status_code", apiErr.StatusCode)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("query payment status: %w", err)
	}
	if status.CommerceOrder == "" {
		return fmt.Errorf("status response without commerce order: %w", asynq.SkipRetry)
	}
	state := model.SessionStateFor(status.Status)
	if err := p.sessions.UpdateState(ctx, status.CommerceOrder, state); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			logger.Warn(ctx, "confirm for unknown order", "order_id", status.CommerceOrder)
			return nil
		}
		return err
	}
	logger.Info(ctx, "payment confirmed",
		"order_id", status.CommerceOrder,
		"status", status.Status.Label(),
		"state", string(state),
	)
	return nil
}
