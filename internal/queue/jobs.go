package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ConfirmPaymentTask is scheduled each time Flow calls the confirmation
	// webhook.
	ConfirmPaymentTask = "payment:confirm"
)

// ConfirmPayload is serialized into the task payload so the worker knows
// which checkout to look up.
type ConfirmPayload struct {
	Token      string    `json:"token"`
	ReceivedAt time.Time `json:"received_at"`
}

// Enqueuer is the subset of *asynq.Client used by producers.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewConfirmTask builds the task for one webhook notification.
func NewConfirmTask(payload ConfirmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ConfirmPaymentTask, data), nil
}

// EnqueueConfirm enqueues a payment confirmation job. The token doubles as
// the task id so duplicate webhooks for one checkout collapse while the
// first is still queued.
func EnqueueConfirm(ctx context.Context, client Enqueuer, payload ConfirmPayload) error {
	task, err := NewConfirmTask(payload)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.TaskID("confirm:"+payload.Token),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue confirm task: %w", err)
	}
	return nil
}

// DecodeConfirm parses a task payload.
func DecodeConfirm(task *asynq.Task) (ConfirmPayload, error) {
	var payload ConfirmPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Token == "" {
		return payload, fmt.Errorf("confirm payload without token: %w", asynq.SkipRetry)
	}
	return payload, nil
}
