//
//  Copyright © Manetu Inc. All rights reserved.
//

package bundle

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
	"github.com/pkg/errors"
)

// MembershipWriter records group memberships, e.g. [groups.Static] or
// [groups.Redis].
type MembershipWriter interface {
	AddMember(ctx context.Context, userID, groupID string) error
}

// Target is where a bundle is applied.  Only Authorizations is required;
// memberships and engine entities are skipped when their target is nil.
type Target struct {
	Authorizations *store.Service
	Memberships    MembershipWriter
	Repository     *engine.Repository
	Provider       provider.Provider
}

// Summary counts what Apply wrote.
type Summary struct {
	Authorizations int
	Memberships    int
	Provided       int
}

// Apply validates b and writes it to t.  Bundle authorizations are saved
// first so that records from the provider hooks merge into them.
func (b *Bundle) Apply(ctx context.Context, t Target) (Summary, error) {
	var sum Summary
	if t.Authorizations == nil {
		return sum, errors.New("bundle: no authorization service")
	}
	if err := b.Validate(t.Authorizations.Registry()); err != nil {
		return sum, err
	}
	if t.Provider == nil {
		t.Provider = provider.Noop{}
	}

	a := &applier{ctx: ctx, t: t, sum: &sum}
	for _, fn := range []func() error{a.authorizations(b), a.groups(b), a.tenants(b), a.engine(b)} {
		if err := fn(); err != nil {
			return sum, errors.Wrapf(err, "applying bundle %s", b.Metadata.Name)
		}
	}

	logger.Debugf(agent, "apply", "bundle %s: %d authorizations, %d memberships, %d provided",
		b.Metadata.Name, sum.Authorizations, sum.Memberships, sum.Provided)
	return sum, nil
}

type applier struct {
	ctx context.Context
	t   Target
	sum *Summary
}

func (a *applier) authorizations(b *Bundle) func() error {
	return func() error {
		reg := a.t.Authorizations.Registry()
		for _, spec := range b.Spec.Authorizations {
			rec, err := spec.Record(reg)
			if err != nil {
				return err
			}
			if err := a.t.Authorizations.Save(a.ctx, rec); err != nil {
				return err
			}
			a.sum.Authorizations++
		}
		return nil
	}
}

// provided saves the records of a provider hook.
func (a *applier) provided(recs []*model.Authorization, err error) error {
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := a.t.Authorizations.Save(a.ctx, rec); err != nil {
			return err
		}
		a.sum.Provided++
	}
	return nil
}

func (a *applier) groups(b *Bundle) func() error {
	return func() error {
		for _, g := range b.Spec.Groups {
			for _, user := range g.Members {
				if a.t.Memberships != nil {
					if err := a.t.Memberships.AddMember(a.ctx, user, g.ID); err != nil {
						return err
					}
					a.sum.Memberships++
				}
				if err := a.provided(a.t.Provider.GroupMembershipCreated(a.ctx, g.ID, user)); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func (a *applier) tenants(b *Bundle) func() error {
	return func() error {
		for _, tn := range b.Spec.Tenants {
			for _, user := range tn.Users {
				if err := a.provided(a.t.Provider.TenantMembershipCreated(a.ctx, tn.ID, user, "")); err != nil {
					return err
				}
			}
			for _, group := range tn.Groups {
				if err := a.provided(a.t.Provider.TenantMembershipCreated(a.ctx, tn.ID, "", group)); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func (a *applier) engine(b *Bundle) func() error {
	return func() error {
		e := b.Spec.Engine
		if a.t.Repository == nil || e.empty() {
			return nil
		}
		return a.t.Repository.Update(func(tx *engine.Tx) error {
			return a.seed(tx, e)
		})
	}
}

// seed adds the entities of e in dependency order.  Definitions and instances
// are suspended last so that instances and jobs can still be created; jobs
// inherit the suspension of their job definition.
func (a *applier) seed(tx *engine.Tx, e Engine) error {
	for _, d := range e.Deployments {
		tx.AddDeployment(engine.Deployment{ID: d.ID, Name: d.Name})
	}
	for _, d := range e.Definitions {
		if _, err := tx.AddDefinition(engine.ProcessDefinition{ID: d.ID, Key: d.Key, Name: d.Name, Version: d.Version,
			DeploymentID: d.DeploymentID, FormKey: d.FormKey}); err != nil {
			return err
		}
	}
	for _, i := range e.Instances {
		pi, err := tx.AddInstance(engine.ProcessInstance{ID: i.ID, DefinitionID: i.DefinitionID, BusinessKey: i.BusinessKey})
		if err != nil {
			return err
		}
		for _, activity := range i.Activities {
			if _, err := tx.AddActivityInstance(pi.ID, activity); err != nil {
				return err
			}
		}
	}
	for _, jd := range e.JobDefinitions {
		if _, err := tx.AddJobDefinition(engine.JobDefinition{ID: jd.ID, DefinitionID: jd.DefinitionID,
			ActivityID: jd.ActivityID, JobType: jd.JobType, Suspended: jd.Suspended}); err != nil {
			return err
		}
	}
	for _, j := range e.Jobs {
		if _, err := tx.AddJob(engine.Job{ID: j.ID, JobDefinitionID: j.JobDefinitionID, ProcessInstanceID: j.ProcessInstanceID,
			ActivityID: j.ActivityID, Retries: j.Retries, ExceptionMessage: j.ExceptionMessage}); err != nil {
			return err
		}
	}
	for _, t := range e.Tasks {
		task, err := tx.AddTask(engine.Task{ID: t.ID, Name: t.Name, ProcessInstanceID: t.ProcessInstanceID, FormKey: t.FormKey,
			Assignee: t.Assignee, Owner: t.Owner, CandidateUsers: t.CandidateUsers, CandidateGroups: t.CandidateGroups})
		if err != nil {
			return err
		}
		if err := a.provided(a.t.Provider.NewTask(a.ctx, task)); err != nil {
			return err
		}
	}
	for _, i := range e.Incidents {
		if _, err := tx.AddIncident(engine.Incident{ID: i.ID, Type: i.Type, ProcessInstanceID: i.ProcessInstanceID,
			ActivityID: i.ActivityID, Message: i.Message}); err != nil {
			return err
		}
	}
	for _, v := range e.Variables {
		if _, err := tx.SetVariable(v.ProcessInstanceID, v.TaskID, v.Name, v.Value); err != nil {
			return err
		}
	}
	for k, v := range e.Properties {
		tx.State().Properties[k] = v
	}

	return a.suspend(tx, e)
}

func (a *applier) suspend(tx *engine.Tx, e Engine) error {
	for _, d := range e.Definitions {
		if d.Suspended {
			pd, err := tx.Definition(d.ID)
			if err != nil {
				return err
			}
			pd.Suspended = true
		}
	}
	for _, i := range e.Instances {
		if i.Suspended {
			pi, err := tx.Instance(i.ID)
			if err != nil {
				return err
			}
			pi.Suspended = true
		}
	}
	return nil
}
