//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

// StartForm returns the start form key of a definition.  It requires READ
// on the definition.
func (g *Gate) StartForm(ctx context.Context, auth types.Authentication, definitionID string) (string, error) {
	var key string
	err := g.run(ctx, auth, "getStartForm", func(tx *engine.Tx, s *step) error {
		pd, err := tx.Definition(definitionID)
		if err != nil {
			return err
		}
		if err := s.check(check.AnyOf(onDefinition(pdPerms.Read, pd.Key))); err != nil {
			return err
		}
		key = pd.FormKey
		return nil
	})
	return key, err
}

// SubmitStartForm starts an instance of a definition with variables.  It
// requires both CREATE on ProcessInstance and CREATE_INSTANCE on the
// definition.
func (g *Gate) SubmitStartForm(ctx context.Context, auth types.Authentication, definitionID, businessKey string,
	variables map[string]any) (engine.ProcessInstance, error) {
	var pi engine.ProcessInstance
	err := g.run(ctx, auth, "submitStartForm", func(tx *engine.Tx, s *step) error {
		pd, err := tx.Definition(definitionID)
		if err != nil {
			return err
		}
		if err := s.check(
			check.AnyOf(onInstance(piPerms.Create, model.Any)),
			check.AnyOf(onDefinition(pdPerms.CreateInstance, pd.Key))); err != nil {
			return err
		}
		if pi, err = tx.StartInstance(pd.ID, businessKey); err != nil {
			return err
		}
		for name, v := range variables {
			if _, err := tx.SetVariable(pi.ID, "", name, v); err != nil {
				return err
			}
		}
		return nil
	})
	return pi, err
}

// TaskForm returns the form key of a task.
func (g *Gate) TaskForm(ctx context.Context, auth types.Authentication, taskID string) (string, error) {
	var key string
	err := g.taskCommand(ctx, auth, "getTaskForm", taskID, readRules, func(_ *engine.Tx, _ *step, t *engine.Task) error {
		key = t.FormKey
		return nil
	})
	return key, err
}

// SubmitTaskForm completes a task with the submitted variables.
func (g *Gate) SubmitTaskForm(ctx context.Context, auth types.Authentication, taskID string, variables map[string]any) error {
	return g.taskCommand(ctx, auth, "submitTaskForm", taskID, workRules, func(tx *engine.Tx, _ *step, t *engine.Task) error {
		return complete(tx, t, variables)
	})
}
