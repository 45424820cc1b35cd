package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wapuda/vidfetch/internal/jobs"
	logx "github.com/wapuda/vidfetch/internal/logs"
)

// Queue hands jobs to the worker process through Redis.
type Queue struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewQueue(client *asynq.Client, timeout time.Duration) *Queue {
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &Queue{client: client, timeout: timeout}
}

// Enqueue submits p once; failed jobs are not retried.
func (q *Queue) Enqueue(ctx context.Context, p jobs.DeliverPayload) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(jobs.TaskDeliver, b),
		asynq.TaskID(p.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobs.TaskDeliver, err)
	}
	logx.FromCtx(ctx).Info().Str("job", info.ID).Str("queue", info.Queue).Msg("job enqueued")
	return nil
}

// Register mounts the deliver handler on mux.
func Register(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(jobs.TaskDeliver, func(ctx context.Context, t *asynq.Task) error {
		p, err := jobs.UnmarshalDeliver(t.Payload())
		if err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.JobID == "" {
			if id, ok := asynq.GetTaskID(ctx); ok {
				p.JobID = id
			}
		}
		if res := h.Handle(ctx, p); res.Err != nil {
			// the user was already told; keep asynq from retrying
			return fmt.Errorf("%v: %w", res.Err, asynq.SkipRetry)
		}
		return nil
	})
}
