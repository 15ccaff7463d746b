//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

func instanceUpdateRules(pi *engine.ProcessInstance) check.Composite {
	return check.AnyOf(onInstance(piPerms.Update, pi.ID), onDefinition(pdPerms.UpdateInstance, pi.DefinitionKey))
}

func instanceVariableRules(pi *engine.ProcessInstance) check.Composite {
	return check.AnyOf(
		onInstance(piPerms.Update, pi.ID), onInstance(piPerms.UpdateVariable, pi.ID),
		onDefinition(pdPerms.UpdateInstance, pi.DefinitionKey), onDefinition(pdPerms.UpdateInstanceVariable, pi.DefinitionKey))
}

func (g *Gate) instanceCommand(ctx context.Context, auth types.Authentication, op, instanceID string,
	rules func(*engine.ProcessInstance) check.Composite, fn func(tx *engine.Tx, pi *engine.ProcessInstance) error) error {
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		pi, err := tx.Instance(instanceID)
		if err != nil {
			return err
		}
		if err := s.check(rules(pi)); err != nil {
			return err
		}
		return fn(tx, pi)
	})
}

// SetVariables creates or replaces variables of an instance.
func (g *Gate) SetVariables(ctx context.Context, auth types.Authentication, instanceID string, variables map[string]any) error {
	return g.instanceCommand(ctx, auth, "setVariables", instanceID, instanceVariableRules, func(tx *engine.Tx, pi *engine.ProcessInstance) error {
		for name, v := range variables {
			if _, err := tx.SetVariable(pi.ID, "", name, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *Gate) SetVariable(ctx context.Context, auth types.Authentication, instanceID, name string, value any) error {
	return g.SetVariables(ctx, auth, instanceID, map[string]any{name: value})
}

func (g *Gate) RemoveVariables(ctx context.Context, auth types.Authentication, instanceID string, names ...string) error {
	return g.instanceCommand(ctx, auth, "removeVariables", instanceID, instanceVariableRules, func(tx *engine.Tx, pi *engine.ProcessInstance) error {
		for _, name := range names {
			tx.RemoveVariable(pi.ID, "", name)
		}
		return nil
	})
}

// InstanceSelector names the instances a suspension state change applies
// to.  Exactly one field is expected.
type InstanceSelector struct {
	ID                   string
	ProcessDefinitionID  string
	ProcessDefinitionKey string
}

func (g *Gate) SuspendProcessInstances(ctx context.Context, auth types.Authentication, sel InstanceSelector) error {
	return g.updateInstanceSuspension(ctx, auth, sel, true)
}

func (g *Gate) ActivateProcessInstances(ctx context.Context, auth types.Authentication, sel InstanceSelector) error {
	return g.updateInstanceSuspension(ctx, auth, sel, false)
}

func suspendRules(instanceID, key string) check.Composite {
	return check.AnyOf(
		onInstance(piPerms.Update, instanceID), onInstance(piPerms.Suspend, instanceID),
		onDefinition(pdPerms.UpdateInstance, key), onDefinition(pdPerms.SuspendInstance, key))
}

// suspendInstance changes the state of pi together with its jobs.
func suspendInstance(tx *engine.Tx, pi *engine.ProcessInstance, suspended bool) {
	pi.Suspended = suspended
	for _, j := range tx.JobsWhere(func(j *engine.Job) bool { return j.ProcessInstanceID == pi.ID }) {
		j.Suspended = suspended
	}
}

func (g *Gate) updateInstanceSuspension(ctx context.Context, auth types.Authentication, sel InstanceSelector, suspended bool) error {
	op := operation("updateProcessInstanceSuspensionState", suspended)
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		var instances []*engine.ProcessInstance
		switch {
		case sel.ID != "":
			pi, err := tx.Instance(sel.ID)
			if err != nil {
				return err
			}
			if err := s.check(suspendRules(pi.ID, pi.DefinitionKey)); err != nil {
				return err
			}
			instances = []*engine.ProcessInstance{pi}
		case sel.ProcessDefinitionID != "":
			pd, err := tx.Definition(sel.ProcessDefinitionID)
			if err != nil {
				return err
			}
			if err := s.check(suspendRules(model.Any, pd.Key)); err != nil {
				return err
			}
			instances = tx.InstancesWhere(func(pi *engine.ProcessInstance) bool { return pi.DefinitionID == pd.ID })
		case sel.ProcessDefinitionKey != "":
			if err := s.check(suspendRules(model.Any, sel.ProcessDefinitionKey)); err != nil {
				return err
			}
			instances = tx.InstancesWhere(func(pi *engine.ProcessInstance) bool { return pi.DefinitionKey == sel.ProcessDefinitionKey })
		default:
			return common.NewError(common.KindBadRequest,
				"Process instance id, process definition id nor process definition key cannot be null")
		}

		for _, pi := range instances {
			suspendInstance(tx, pi, suspended)
		}
		return nil
	})
}

// SetAnnotation sets the annotation of an incident; an empty annotation
// clears it.
func (g *Gate) SetAnnotation(ctx context.Context, auth types.Authentication, incidentID, annotation string) error {
	return g.run(ctx, auth, "setAnnotation", func(tx *engine.Tx, s *step) error {
		i, err := tx.Incident(incidentID)
		if err != nil {
			return err
		}
		pi, err := tx.Instance(i.ProcessInstanceID)
		if err != nil {
			return err
		}
		if err := s.check(instanceUpdateRules(pi)); err != nil {
			return err
		}
		i.Annotation = annotation
		return nil
	})
}

func (g *Gate) ClearAnnotation(ctx context.Context, auth types.Authentication, incidentID string) error {
	return g.SetAnnotation(ctx, auth, incidentID, "")
}
