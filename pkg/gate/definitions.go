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

var deploymentCreate = resources.MustLookup(resources.Deployment, "CREATE")

// CreateDeployment stores a deployment with its process definitions.  It
// requires CREATE on Deployment; the provider is told about the deployment
// and each definition.
func (g *Gate) CreateDeployment(ctx context.Context, auth types.Authentication, d engine.Deployment,
	defs ...engine.ProcessDefinition) (engine.Deployment, error) {
	err := g.run(ctx, auth, "createDeployment", func(tx *engine.Tx, s *step) error {
		if err := s.check(check.AnyOf(on(deploymentCreate, resources.Deployment, model.Any))); err != nil {
			return err
		}
		d = tx.AddDeployment(d)
		if err := s.issue(g.provider.NewDeployment(ctx, auth, d)); err != nil {
			return err
		}
		for _, pd := range defs {
			pd.DeploymentID = d.ID
			pd, err := tx.AddDefinition(pd)
			if err != nil {
				return err
			}
			if err := s.issue(g.provider.NewProcessDefinition(ctx, pd)); err != nil {
				return err
			}
		}
		return nil
	})
	return d, err
}

func deleteRules(key string, cascade bool) []check.Composite {
	cs := []check.Composite{check.AnyOf(onDefinition(pdPerms.Delete, key))}
	if cascade {
		cs = append(cs, check.AnyOf(onDefinition(pdPerms.DeleteInstance, key), onInstance(piPerms.Delete, model.Any)))
	}
	return cs
}

func deleteDefinition(tx *engine.Tx, s *step, pd *engine.ProcessDefinition, cascade bool) error {
	if err := s.check(deleteRules(pd.Key, cascade)...); err != nil {
		return err
	}
	if cascade {
		for _, pi := range tx.InstancesWhere(func(pi *engine.ProcessInstance) bool { return pi.DefinitionID == pd.ID }) {
			if err := tx.DeleteInstance(pi.ID); err != nil {
				return err
			}
		}
	}
	return tx.DeleteDefinition(pd.ID)
}

// DeleteProcessDefinition deletes one definition.  With cascade its
// instances are deleted first; without, a definition with instances is not
// deleted.
func (g *Gate) DeleteProcessDefinition(ctx context.Context, auth types.Authentication, id string, cascade bool) error {
	return g.DeleteProcessDefinitions(ctx, auth, []string{id}, cascade)
}

// DeleteProcessDefinitions deletes every definition of ids, or none.
func (g *Gate) DeleteProcessDefinitions(ctx context.Context, auth types.Authentication, ids []string, cascade bool) error {
	return g.run(ctx, auth, "deleteProcessDefinitions", func(tx *engine.Tx, s *step) error {
		for _, id := range ids {
			pd, err := tx.Definition(id)
			if err != nil {
				return err
			}
			if err := deleteDefinition(tx, s, pd, cascade); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteProcessDefinitionsByKey deletes every version of key.
func (g *Gate) DeleteProcessDefinitionsByKey(ctx context.Context, auth types.Authentication, key string, cascade bool) error {
	return g.run(ctx, auth, "deleteProcessDefinitionsByKey", func(tx *engine.Tx, s *step) error {
		defs := tx.DefinitionsByKey(key)
		if len(defs) == 0 {
			return common.NewErrorf(common.KindNotFound, "No process definition found with key '%s'", key)
		}
		for _, pd := range defs {
			if err := deleteDefinition(tx, s, pd, cascade); err != nil {
				return err
			}
		}
		return nil
	})
}

// DefinitionSelector names the process definitions a suspension state change
// applies to: one id, or every version of a key.
type DefinitionSelector struct {
	ID  string
	Key string

	// IncludeInstances changes the state of the definitions' instances as
	// well.
	IncludeInstances bool
}

func (g *Gate) SuspendProcessDefinitions(ctx context.Context, auth types.Authentication, sel DefinitionSelector) error {
	return g.updateDefinitionSuspension(ctx, auth, sel, true)
}

func (g *Gate) ActivateProcessDefinitions(ctx context.Context, auth types.Authentication, sel DefinitionSelector) error {
	return g.updateDefinitionSuspension(ctx, auth, sel, false)
}

func (g *Gate) updateDefinitionSuspension(ctx context.Context, auth types.Authentication, sel DefinitionSelector, suspended bool) error {
	op := operation("updateProcessDefinitionSuspensionState", suspended)
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		var defs []*engine.ProcessDefinition
		switch {
		case sel.ID != "":
			pd, err := tx.Definition(sel.ID)
			if err != nil {
				return err
			}
			defs = []*engine.ProcessDefinition{pd}
		case sel.Key != "":
			if defs = tx.DefinitionsByKey(sel.Key); len(defs) == 0 {
				return common.NewErrorf(common.KindNotFound, "No process definition found with key '%s'", sel.Key)
			}
		default:
			return common.NewError(common.KindBadRequest, "Process definition id nor process definition key cannot be null")
		}

		key := defs[0].Key
		if err := s.check(check.AnyOf(onDefinition(pdPerms.Update, key), onDefinition(pdPerms.Suspend, key))); err != nil {
			return err
		}
		if sel.IncludeInstances {
			if err := s.check(check.AnyOf(
				onInstance(piPerms.Update, model.Any), onInstance(piPerms.Suspend, model.Any),
				onDefinition(pdPerms.UpdateInstance, key), onDefinition(pdPerms.SuspendInstance, key))); err != nil {
				return err
			}
		}

		for _, pd := range defs {
			pd.Suspended = suspended
			for _, jd := range tx.JobDefinitionsWhere(func(jd *engine.JobDefinition) bool { return jd.DefinitionID == pd.ID }) {
				jd.Suspended = suspended
			}
			if sel.IncludeInstances {
				for _, pi := range tx.InstancesWhere(func(pi *engine.ProcessInstance) bool { return pi.DefinitionID == pd.ID }) {
					suspendInstance(tx, pi, suspended)
				}
			}
		}
		return nil
	})
}
