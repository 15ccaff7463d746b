//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package batch names the batch operations and seeds created batches into a
// job backend.
package batch

import (
	"context"
	"sync"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/engine"
)

var logger = logging.GetLogger("authz.batch")

const agent = "batch"

// Operation is the type of a batch.
type Operation string

const (
	MigrateProcessInstances          Operation = "instance-migration"
	ModifyProcessInstances           Operation = "instance-modification"
	RestartProcessInstances          Operation = "instance-restart"
	DeleteRunningProcessInstances    Operation = "instance-deletion"
	DeleteFinishedProcessInstances   Operation = "historic-instance-deletion"
	DeleteDecisionInstances          Operation = "historic-decision-instance-deletion"
	SetJobRetries                    Operation = "set-job-retries"
	SetRemovalTime                   Operation = "process-set-removal-time"
	SetExternalTaskRetries           Operation = "set-external-task-retries"
	UpdateProcessInstancesSuspension Operation = "instance-update-suspension-state"
	SetVariables                     Operation = "set-variables"
)

var permissions = map[Operation]resources.Permission{
	MigrateProcessInstances:          resources.BatchPerms.CreateBatchMigrateProcessInstances,
	ModifyProcessInstances:           resources.BatchPerms.CreateBatchModifyProcessInstances,
	RestartProcessInstances:          resources.BatchPerms.CreateBatchRestartProcessInstances,
	DeleteRunningProcessInstances:    resources.BatchPerms.CreateBatchDeleteRunningProcessInstances,
	DeleteFinishedProcessInstances:   resources.BatchPerms.CreateBatchDeleteFinishedProcessInstances,
	DeleteDecisionInstances:          resources.BatchPerms.CreateBatchDeleteDecisionInstances,
	SetJobRetries:                    resources.BatchPerms.CreateBatchSetJobRetries,
	SetRemovalTime:                   resources.BatchPerms.CreateBatchSetRemovalTime,
	SetExternalTaskRetries:           resources.BatchPerms.CreateBatchSetExternalTaskRetries,
	UpdateProcessInstancesSuspension: resources.BatchPerms.CreateBatchUpdateProcessInstancesSuspend,
	SetVariables:                     resources.BatchPerms.CreateBatchSetVariables,
}

// Permission returns the CREATE_BATCH_* permission of op.
func Permission(op Operation) (resources.Permission, error) {
	p, ok := permissions[op]
	if !ok {
		return resources.Permission{}, common.NewErrorf(common.KindBadRequest, "unknown batch type '%s'", op)
	}
	return p, nil
}

// Seeder hands a created batch to whatever executes its jobs.
type Seeder interface {
	Seed(ctx context.Context, b engine.Batch) error
	Close() error
}

// Memory keeps seeded batches in a slice.
type Memory struct {
	mu      sync.Mutex
	batches []engine.Batch
}

var _ Seeder = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Seed(_ context.Context, b engine.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	logger.Debugf(agent, "seed", "batch %s (%s) with %d jobs", b.ID, b.Type, b.TotalJobs)
	return nil
}

// Seeded returns the batches seeded so far, oldest first.
func (m *Memory) Seeded() []engine.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Batch(nil), m.batches...)
}

func (m *Memory) Close() error { return nil }
