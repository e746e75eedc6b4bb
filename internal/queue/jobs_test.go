package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "x", Queue: "default"}, nil
}

func TestEnqueueConfirm(t *testing.T) {
	f := &fakeEnqueuer{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, EnqueueConfirm(context.Background(), f, ConfirmPayload{Token: "TOK", ReceivedAt: at}))
	require.Len(t, f.tasks, 1)
	assert.Equal(t, ConfirmPaymentTask, f.tasks[0].Type())

	var foundID bool
	for _, opt := range f.opts[0] {
		if opt.Type() == asynq.TaskIDOpt {
			foundID = true
			assert.Equal(t, "confirm:TOK", opt.Value())
		}
	}
	assert.True(t, foundID, "expected a task id option")

	payload, err := DecodeConfirm(f.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "TOK", payload.Token)
	assert.True(t, payload.ReceivedAt.Equal(at))
}

func TestEnqueueConfirmError(t *testing.T) {
	f := &fakeEnqueuer{err: errors.New("redis down")}
	err := EnqueueConfirm(context.Background(), f, ConfirmPayload{Token: "TOK"})
	assert.ErrorContains(t, err, "redis down")
}

func TestDecodeConfirmRejectsMissingToken(t *testing.T) {
	_, err := DecodeConfirm(asynq.NewTask(ConfirmPaymentTask, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = DecodeConfirm(asynq.NewTask(ConfirmPaymentTask, []byte(`nope`)))
	assert.Error(t, err)
}
