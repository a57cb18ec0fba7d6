package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/obs"
)

// TaskClient is the subset of *asynq.Client used to publish tasks.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes notification tasks.
type Enqueuer struct {
	Client    TaskClient
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
	Logger    zerolog.Logger
}

// EnqueueConfirmation schedules the confirmation email for an order. The order
// id is used as task id so a repeated enqueue for the same order is a no-op.
func (e Enqueuer) EnqueueConfirmation(ctx context.Context, c Confirmation) error {
	if e.Client == nil {
		obs.IncCounterVec(obs.NotificationsTotal, "enqueue", "skipped")
		return nil
	}
	payload, err := encodeConfirmation(c)
	if err != nil {
		obs.IncCounterVec(obs.NotificationsTotal, "enqueue", "invalid")
		return err
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	opts := []asynq.Option{
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID("confirmation:" + c.OrderID),
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	info, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TypeEnrollmentConfirmation, payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			obs.IncCounterVec(obs.NotificationsTotal, "enqueue", "duplicate")
			return nil
		}
		obs.IncCounterVec(obs.NotificationsTotal, "enqueue", "error")
		return fmt.Errorf("enqueue confirmation for %s: %w", c.OrderID, err)
	}
	obs.IncCounterVec(obs.NotificationsTotal, "enqueue", "ok")
	e.Logger.Debug().Str("order_id", c.OrderID).Str("task_id", info.ID).Str("queue", info.Queue).Msg("confirmation enqueued")
	return nil
}
