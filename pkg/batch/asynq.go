//
//  Copyright © Manetu Inc. All rights reserved.
//

package batch

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/pkg/errors"
)

// TaskTypeSeed is the asynq task type of a seeded batch.
const TaskTypeSeed = "batch:seed"

// Payload is the body of a TaskTypeSeed task.
type Payload struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	TotalJobs int      `json:"totalJobs"`
	CreatedBy string   `json:"createdBy"`
	Targets   []string `json:"targets,omitempty"`
}

// Asynq enqueues one task per batch on a redis-backed asynq queue.
type Asynq struct {
	client *asynq.Client
	queue  string
}

var _ Seeder = (*Asynq)(nil)

// NewAsynq connects to the redis server at addr.  An empty queue selects
// asynq's default queue.
func NewAsynq(addr, queue string) *Asynq {
	if queue == "" {
		queue = "default"
	}
	return &Asynq{client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}), queue: queue}
}

// NewTask builds the seed task of b.
func NewTask(b engine.Batch) (*asynq.Task, error) {
	data, err := json.Marshal(Payload{ID: b.ID, Type: b.Type, TotalJobs: b.TotalJobs, CreatedBy: b.CreatedBy, Targets: b.Targets})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSeed, data), nil
}

func (a *Asynq) Seed(ctx context.Context, b engine.Batch) error {
	task, err := NewTask(b)
	if err != nil {
		return err
	}
	info, err := a.client.EnqueueContext(ctx, task, asynq.Queue(a.queue), asynq.TaskID(b.ID), asynq.MaxRetry(3))
	if err != nil {
		return errors.Wrapf(err, "batch: enqueue %s", b.ID)
	}
	logger.Debugf(agent, "seed", "enqueued batch %s on %s as %s", b.ID, info.Queue, info.ID)
	return nil
}

func (a *Asynq) Close() error {
	return a.client.Close()
}

// Handler adapts fn into an asynq handler for TaskTypeSeed.
func Handler(fn func(ctx context.Context, b engine.Batch) error) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Warnf(agent, "handle", "dropping malformed seed task: %v", err)
			return asynq.SkipRetry
		}
		return fn(ctx, engine.Batch{ID: p.ID, Type: p.Type, TotalJobs: p.TotalJobs, CreatedBy: p.CreatedBy, Targets: p.Targets})
	}
}
