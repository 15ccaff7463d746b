//
//  Copyright © Manetu Inc. All rights reserved.
//

package query_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/manetu/authzengine/internal/core/test"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counting records how often the filter normalizes group ids.
type counting struct {
	core.AuthorizationManager
	calls atomic.Int32
}

func (c *counting) FilterAuthenticatedGroupIDs(groupIDs []string) []string {
	c.calls.Add(1)
	return c.AuthorizationManager.FilterAuthenticatedGroupIDs(groupIDs)
}

type fixture struct {
	mgr   *counting
	repo  *engine.Repository
	q     *query.Service
	pd    engine.ProcessDefinition
	pis   []engine.ProcessInstance
	tasks []engine.Task
}

var demo = types.NewAuthentication("demo", []string{"sales"})

func newFixture(t *testing.T, opts ...options.ManagerOptionsFunc) *fixture {
	t.Helper()
	opts = append([]options.ManagerOptionsFunc{
		options.WithSettings(test.Settings()),
		options.WithAccessLog(accesslog.NewNullFactory()),
	}, opts...)
	m, err := core.NewAuthorizationManager(opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	f := &fixture{mgr: &counting{AuthorizationManager: m}, repo: engine.New()}
	f.q = query.New(f.repo, f.mgr)

	require.NoError(t, f.repo.Update(func(tx *engine.Tx) error {
		dep := tx.AddDeployment(engine.Deployment{ID: "dep-1", Name: "invoice"})
		pd, err := tx.AddDefinition(engine.ProcessDefinition{ID: "process:1", Key: "process", DeploymentID: dep.ID})
		if err != nil {
			return err
		}
		f.pd = pd
		jd, err := tx.AddJobDefinition(engine.JobDefinition{ID: "jd-1", DefinitionID: pd.ID, ActivityID: "scriptTask"})
		if err != nil {
			return err
		}

		for i := 0; i < 3; i++ {
			pi, err := tx.StartInstance(pd.ID, "")
			if err != nil {
				return err
			}
			f.pis = append(f.pis, pi)
			if _, err := tx.AddActivityInstance(pi.ID, "scriptTask"); err != nil {
				return err
			}
			if _, err := tx.AddJob(engine.Job{JobDefinitionID: jd.ID, ProcessInstanceID: pi.ID, Retries: 0}); err != nil {
				return err
			}
			if _, err := tx.AddIncident(engine.Incident{ProcessInstanceID: pi.ID, ActivityID: "scriptTask", Type: "failedJob"}); err != nil {
				return err
			}
			task, err := tx.AddTask(engine.Task{ID: fmt.Sprintf("task-%d", i), ProcessInstanceID: pi.ID})
			if err != nil {
				return err
			}
			f.tasks = append(f.tasks, task)
			if _, err := tx.SetVariable(pi.ID, "", "amount", i); err != nil {
				return err
			}
			if _, err := tx.SetVariable("", task.ID, "note", "x"); err != nil {
				return err
			}
		}
		standalone, err := tx.AddTask(engine.Task{ID: "standalone"})
		f.tasks = append(f.tasks, standalone)
		return err
	}))
	return f
}

func (f *fixture) save(t *testing.T, kind model.Type, user, group string, r resources.Resource, id string, ps ...resources.Permission) {
	t.Helper()
	a := f.mgr.Authorizations().CreateAuthorization(kind, r, id)
	a.UserID, a.GroupID = user, group
	for _, p := range ps {
		if kind == model.Revoke {
			a.RemovePermission(p)
		} else {
			a.AddPermission(p)
		}
	}
	require.NoError(t, f.mgr.Authorizations().Save(context.Background(), a))
}

func TestActivityStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pd := resources.ProcessDefinitionPerms

	_, err := f.q.ActivityStatistics(demo, f.pd.ID).List(ctx)
	assert.ErrorIs(t, err, common.ErrAuthorizationDenied)

	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", pd.Read)
	stats, err := f.q.ActivityStatistics(demo, f.pd.ID).IncludeFailedJobs().IncludeIncidents().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats, "instances are invisible without READ_INSTANCE")

	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, model.Any, pd.ReadInstance)
	stats, err = f.q.ActivityStatistics(demo, f.pd.ID).IncludeFailedJobs().IncludeIncidents().List(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, query.ActivityStatistics{ID: "scriptTask", Counts: query.Counts{Instances: 3, FailedJobs: 3, Incidents: 3}}, stats[0])

	stats, err = f.q.ActivityStatistics(demo, f.pd.ID).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, query.Counts{Instances: 3}, stats[0].Counts)

	_, err = f.q.ActivityStatistics(demo, "missing").List(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestActivityStatisticsPerInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", resources.ProcessDefinitionPerms.Read)
	f.save(t, model.Grant, "demo", "", resources.ProcessInstance, f.pis[0].ID, resources.ProcessInstancePerms.Read)

	stats, err := f.q.ActivityStatistics(demo, f.pd.ID).IncludeIncidents().List(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, query.Counts{Instances: 1, Incidents: 1}, stats[0].Counts)
}

func TestTaskQueryUnion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.save(t, model.Grant, "demo", "", resources.Task, model.Any, resources.TaskPerms.Read)
	f.save(t, model.Grant, "", "sales", resources.Task, model.Any, resources.TaskPerms.Read)

	tasks, err := f.q.Tasks(demo).List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, len(f.tasks))

	n, err := f.q.Tasks(demo).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(tasks), n)
}

func TestTaskQueryRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.save(t, model.Grant, "demo", "", resources.Task, model.Any, resources.TaskPerms.Read)
	f.save(t, model.Revoke, "demo", "", resources.Task, "task-1", resources.TaskPerms.Read)

	tasks, err := f.q.Tasks(demo).List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, len(f.tasks)-1)
	for _, task := range tasks {
		assert.NotEqual(t, "task-1", task.ID)
	}
}

func TestTaskQueryByDefinition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.save(t, model.Grant, "", "sales", resources.ProcessDefinition, "process", resources.ProcessDefinitionPerms.ReadTask)

	tasks, err := f.q.Tasks(demo).List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3, "the standalone task needs READ on the task")

	task, err := f.q.Tasks(demo).TaskID("task-2").SingleResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "task-2", task.ID)

	_, err = f.q.Tasks(demo).SingleResult(ctx)
	assert.ErrorIs(t, err, common.ErrBadRequest)

	task, err = f.q.Tasks(demo).TaskID("standalone").SingleResult(ctx)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestProcessInstanceQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	n, err := f.q.ProcessInstances(demo).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no records are not authorized")

	f.save(t, model.Grant, "demo", "", resources.ProcessInstance, f.pis[1].ID, resources.ProcessInstancePerms.Read)
	pis, err := f.q.ProcessInstances(demo).List(ctx)
	require.NoError(t, err)
	require.Len(t, pis, 1)
	assert.Equal(t, f.pis[1], pis[0])

	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", resources.ProcessDefinitionPerms.ReadInstance)
	n, err = f.q.ProcessInstances(demo).ProcessDefinitionKey("process").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	executions, err := f.q.Executions(demo).List(ctx)
	require.NoError(t, err)
	assert.Len(t, executions, 3)
}

func TestFilterCalledOncePerExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.save(t, model.Grant, "demo", "", resources.Task, model.Any, resources.TaskPerms.Read)

	_, err := f.q.Tasks(demo).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.mgr.calls.Load())

	_, err = f.q.Tasks(demo).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.mgr.calls.Load())

	_, err = f.q.ActivityStatistics(demo, f.pd.ID).List(ctx)
	assert.Error(t, err)
	assert.Equal(t, int32(3), f.mgr.calls.Load())
}

func TestJobAndIncidentQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	jobs, err := f.q.Jobs(demo).ProcessInstanceID(f.pis[0].ID).List(ctx)
	require.NoError(t, err)
	require.Empty(t, jobs)

	all, err := f.q.Jobs(types.NewAuthentication("root", []string{"operaton-admin"})).NoRetriesLeft().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	f.save(t, model.Grant, "demo", "", resources.Job, all[2].ID, resources.MustLookup(resources.Job, "READ"))
	jobs, err = f.q.Jobs(demo).List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, all[2].ID, jobs[0].ID)

	n, err := f.q.Incidents(demo).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.save(t, model.Grant, "", "sales", resources.ProcessInstance, model.Any, resources.ProcessInstancePerms.Read)
	n, err = f.q.Incidents(demo).ActivityID("scriptTask").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestJobDefinitionQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	n, err := f.q.JobDefinitions(demo).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.save(t, model.Grant, "demo", "", resources.JobDefinition, "jd-1", resources.MustLookup(resources.JobDefinition, "READ"))
	n, err = f.q.JobDefinitions(demo).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVariableQuery(t *testing.T) {
	ctx := context.Background()
	pd := resources.ProcessDefinitionPerms

	f := newFixture(t)
	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", pd.ReadInstance)
	vars, err := f.q.VariableInstances(demo).VariableName("amount").List(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 3)

	n, err := f.q.VariableInstances(demo).VariableName("note").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "task variables need task visibility")

	s := test.Settings()
	s.EnforceSpecificVariablePermission = true
	f = newFixture(t, options.WithSettings(s))
	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", pd.ReadInstance, pd.ReadTask)
	n, err = f.q.VariableInstances(demo).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "coarse permissions are not enough when specific ones are enforced")

	f.save(t, model.Grant, "", "sales", resources.ProcessDefinition, "process", pd.ReadInstanceVariable)
	f.save(t, model.Grant, "demo", "", resources.Task, "task-0", resources.TaskPerms.ReadVariable)
	vars, err = f.q.VariableInstances(demo).List(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 4)
}

func TestDefinitionAndDeploymentStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stats, err := f.q.ProcessDefinitionStatistics(demo).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)

	f.save(t, model.Grant, "demo", "", resources.ProcessDefinition, "process", resources.ProcessDefinitionPerms.Read)
	stats, err = f.q.ProcessDefinitionStatistics(demo).IncludeFailedJobs().List(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, query.Counts{}, stats[0].Counts)

	f.save(t, model.Grant, "demo", "", resources.ProcessInstance, f.pis[0].ID, resources.ProcessInstancePerms.Read)
	stats, err = f.q.ProcessDefinitionStatistics(demo).IncludeFailedJobs().IncludeIncidents().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, query.Counts{Instances: 1, FailedJobs: 1, Incidents: 1}, stats[0].Counts)

	deployments, err := f.q.DeploymentStatistics(demo).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, deployments)

	f.save(t, model.Grant, "demo", "", resources.Deployment, model.Any, resources.MustLookup(resources.Deployment, "READ"))
	deployments, err = f.q.DeploymentStatistics(demo).IncludeIncidents().List(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "dep-1", deployments[0].Deployment.ID)
	assert.Equal(t, query.Counts{Instances: 1, Incidents: 1}, deployments[0].Counts)

	n, err := f.q.Deployments(demo).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnrestricted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	n, err := f.q.Tasks(demo, options.WithAuthorizationDisabled()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(f.tasks), n)

	admin := types.NewAuthentication("root", []string{"operaton-admin"})
	stats, err := f.q.ActivityStatistics(admin, f.pd.ID).List(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 1)

	s := test.Settings()
	s.DisabledPermissions = []string{"READ_TASK"}
	f = newFixture(t, options.WithSettings(s))
	f.save(t, model.Grant, "demo", "", resources.Task, "standalone", resources.TaskPerms.Read)
	n, err = f.q.Tasks(demo).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a disabled alternative never grants")
}
