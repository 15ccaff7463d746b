//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

var (
	pdPerms = resources.ProcessDefinitionPerms
	piPerms = resources.ProcessInstancePerms
)

// JobDefinitionSelector names the job definitions a suspension state change
// applies to.  Exactly one of the ids or the key is expected.
type JobDefinitionSelector struct {
	ID                   string
	ProcessDefinitionID  string
	ProcessDefinitionKey string

	// IncludeJobs changes the state of the definitions' jobs as well.
	IncludeJobs bool
}

// JobSelector names the jobs a suspension state change applies to.  Exactly
// one field is expected.
type JobSelector struct {
	ID                   string
	JobDefinitionID      string
	ProcessInstanceID    string
	ProcessDefinitionID  string
	ProcessDefinitionKey string
}

func (g *Gate) SuspendJobDefinitions(ctx context.Context, auth types.Authentication, sel JobDefinitionSelector) error {
	return g.updateJobDefinitionSuspension(ctx, auth, sel, true)
}

func (g *Gate) ActivateJobDefinitions(ctx context.Context, auth types.Authentication, sel JobDefinitionSelector) error {
	return g.updateJobDefinitionSuspension(ctx, auth, sel, false)
}

func (g *Gate) updateJobDefinitionSuspension(ctx context.Context, auth types.Authentication, sel JobDefinitionSelector, suspended bool) error {
	op := operation("updateJobDefinitionSuspensionState", suspended)
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		var (
			keys []string
			defs []*engine.JobDefinition
		)
		switch {
		case sel.ID != "":
			jd, err := tx.JobDefinition(sel.ID)
			if err != nil {
				return err
			}
			keys, defs = []string{jd.DefinitionKey}, []*engine.JobDefinition{jd}
		case sel.ProcessDefinitionID != "":
			pd, err := tx.Definition(sel.ProcessDefinitionID)
			if err != nil {
				return err
			}
			keys = []string{pd.Key}
			defs = tx.JobDefinitionsWhere(func(jd *engine.JobDefinition) bool { return jd.DefinitionID == pd.ID })
		case sel.ProcessDefinitionKey != "":
			keys = []string{sel.ProcessDefinitionKey}
			defs = tx.JobDefinitionsWhere(func(jd *engine.JobDefinition) bool { return jd.DefinitionKey == sel.ProcessDefinitionKey })
		default:
			return common.NewError(common.KindBadRequest,
				"Job definition id, process definition id nor process definition key cannot be null")
		}

		for _, key := range keys {
			if err := s.check(check.AnyOf(onDefinition(pdPerms.Update, key))); err != nil {
				return err
			}
			if sel.IncludeJobs {
				if err := s.check(check.AnyOf(onInstance(piPerms.Update, model.Any), onDefinition(pdPerms.UpdateInstance, key))); err != nil {
					return err
				}
			}
		}

		for _, jd := range defs {
			jd.Suspended = suspended
			if !sel.IncludeJobs {
				continue
			}
			for _, j := range tx.JobsWhere(func(j *engine.Job) bool { return j.JobDefinitionID == jd.ID }) {
				j.Suspended = suspended
			}
		}
		logger.Debugf(agent, op, "%d job definitions", len(defs))
		return nil
	})
}

func (g *Gate) SuspendJobs(ctx context.Context, auth types.Authentication, sel JobSelector) error {
	return g.updateJobSuspension(ctx, auth, sel, true)
}

func (g *Gate) ActivateJobs(ctx context.Context, auth types.Authentication, sel JobSelector) error {
	return g.updateJobSuspension(ctx, auth, sel, false)
}

// jobRules are the alternatives allowing a change to j.  A job outside any
// instance is checked against every instance of its definition.
func jobRules(j *engine.Job, extra ...resources.Permission) check.Composite {
	instance := j.ProcessInstanceID
	if instance == "" {
		instance = model.Any
	}
	c := check.AnyOf(onInstance(piPerms.Update, instance))
	for _, p := range extra {
		if p.Resource == resources.ProcessInstance.ID {
			c = c.Or(onInstance(p, instance))
		}
	}
	c = c.Or(onDefinition(pdPerms.UpdateInstance, j.DefinitionKey))
	for _, p := range extra {
		if p.Resource == resources.ProcessDefinition.ID {
			c = c.Or(onDefinition(p, j.DefinitionKey))
		}
	}
	return c
}

// definitionJobRules allow a change to every job of the definition key.
func definitionJobRules(key string) check.Composite {
	return check.AnyOf(onInstance(piPerms.Update, model.Any), onDefinition(pdPerms.UpdateInstance, key))
}

func (g *Gate) updateJobSuspension(ctx context.Context, auth types.Authentication, sel JobSelector, suspended bool) error {
	op := operation("updateJobSuspensionState", suspended)
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		var jobs []*engine.Job
		switch {
		case sel.ID != "":
			j, err := tx.Job(sel.ID)
			if err != nil {
				return err
			}
			if err := s.check(jobRules(j)); err != nil {
				return err
			}
			jobs = []*engine.Job{j}
		case sel.ProcessInstanceID != "":
			pi, err := tx.Instance(sel.ProcessInstanceID)
			if err != nil {
				return err
			}
			if err := s.check(check.AnyOf(onInstance(piPerms.Update, pi.ID), onDefinition(pdPerms.UpdateInstance, pi.DefinitionKey))); err != nil {
				return err
			}
			jobs = tx.JobsWhere(func(j *engine.Job) bool { return j.ProcessInstanceID == pi.ID })
		case sel.JobDefinitionID != "":
			jd, err := tx.JobDefinition(sel.JobDefinitionID)
			if err != nil {
				return err
			}
			if err := s.check(definitionJobRules(jd.DefinitionKey)); err != nil {
				return err
			}
			jobs = tx.JobsWhere(func(j *engine.Job) bool { return j.JobDefinitionID == jd.ID })
		case sel.ProcessDefinitionID != "":
			pd, err := tx.Definition(sel.ProcessDefinitionID)
			if err != nil {
				return err
			}
			if err := s.check(definitionJobRules(pd.Key)); err != nil {
				return err
			}
			jobs = tx.JobsWhere(func(j *engine.Job) bool { return j.DefinitionID == pd.ID })
		case sel.ProcessDefinitionKey != "":
			if err := s.check(definitionJobRules(sel.ProcessDefinitionKey)); err != nil {
				return err
			}
			jobs = tx.JobsWhere(func(j *engine.Job) bool { return j.DefinitionKey == sel.ProcessDefinitionKey })
		default:
			return common.NewError(common.KindBadRequest,
				"Job id, job definition id, process instance id, process definition id nor process definition key cannot be null")
		}

		for _, j := range jobs {
			j.Suspended = suspended
		}
		logger.Debugf(agent, op, "%d jobs", len(jobs))
		return nil
	})
}

// SetJobRetries sets the retries of a job.  A positive count clears its
// failure.
func (g *Gate) SetJobRetries(ctx context.Context, auth types.Authentication, jobID string, retries int) error {
	if retries < 0 {
		return common.NewErrorf(common.KindBadRequest,
			"The number of job retries must be a non-negative Integer, but '%d' has been provided.", retries)
	}
	return g.run(ctx, auth, "setJobRetries", func(tx *engine.Tx, s *step) error {
		j, err := tx.Job(jobID)
		if err != nil {
			return err
		}
		if err := s.check(jobRules(j, piPerms.RetryJob, pdPerms.RetryJob)); err != nil {
			return err
		}
		j.Retries = retries
		if retries > 0 {
			j.ExceptionMessage = ""
		}
		return nil
	})
}

func operation(name string, suspended bool) string {
	if suspended {
		return name + ":suspend"
	}
	return name + ":activate"
}
