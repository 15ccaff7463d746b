//
//  Copyright © Manetu Inc. All rights reserved.
//

package gate

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
)

var taskPerms = resources.TaskPerms

// taskRules builds the alternatives for a change to t: taskPs on the task,
// then definitionPs on its definition unless t is standalone.
func taskRules(t *engine.Task, taskPs []resources.Permission, definitionPs []resources.Permission) check.Composite {
	var c check.Composite
	for _, p := range taskPs {
		c = c.Or(onTask(p, t.ID))
	}
	if t.Standalone() {
		return c
	}
	for _, p := range definitionPs {
		c = c.Or(onDefinition(p, t.DefinitionKey))
	}
	return c
}

func assignRules(t *engine.Task) check.Composite {
	return taskRules(t, []resources.Permission{taskPerms.TaskAssign, taskPerms.Update},
		[]resources.Permission{pdPerms.TaskAssign, pdPerms.UpdateTask})
}

func workRules(t *engine.Task) check.Composite {
	return taskRules(t, []resources.Permission{taskPerms.TaskWork, taskPerms.Update},
		[]resources.Permission{pdPerms.TaskWork, pdPerms.UpdateTask})
}

func readRules(t *engine.Task) check.Composite {
	return taskRules(t, []resources.Permission{taskPerms.Read}, []resources.Permission{pdPerms.ReadTask})
}

func updateRules(t *engine.Task) check.Composite {
	return taskRules(t, []resources.Permission{taskPerms.Update}, []resources.Permission{pdPerms.UpdateTask})
}

func variableRules(t *engine.Task) check.Composite {
	return taskRules(t, []resources.Permission{taskPerms.Update, taskPerms.UpdateVariable},
		[]resources.Permission{pdPerms.UpdateTask, pdPerms.UpdateTaskVariable})
}

// CreateTask stores a new standalone task or a task of an existing
// instance.  It requires CREATE on Task.
func (g *Gate) CreateTask(ctx context.Context, auth types.Authentication, t engine.Task) (engine.Task, error) {
	err := g.run(ctx, auth, "createTask", func(tx *engine.Tx, s *step) error {
		if err := s.check(check.AnyOf(onTask(taskPerms.Create, model.Any))); err != nil {
			return err
		}
		if t.ID != "" {
			if _, err := tx.Task(t.ID); err == nil {
				return common.NewErrorf(common.KindDuplicate, "Cannot create task with id %s: it already exists", t.ID)
			}
		}
		var err error
		if t, err = tx.AddTask(t); err != nil {
			return err
		}
		return s.issue(g.provider.NewTask(ctx, t))
	})
	return t, err
}

// DeleteTask removes a standalone task.
func (g *Gate) DeleteTask(ctx context.Context, auth types.Authentication, taskID string) error {
	return g.run(ctx, auth, "deleteTask", func(tx *engine.Tx, s *step) error {
		t, err := taskNotFound(tx, taskID)
		if err != nil {
			return err
		}
		if err := s.check(check.AnyOf(onTask(taskPerms.Delete, t.ID))); err != nil {
			return err
		}
		if !t.Standalone() {
			return common.NewError(common.KindBadRequest, "The task cannot be deleted because is part of a running process")
		}
		return tx.DeleteTask(t.ID)
	})
}

// taskCommand runs fn on the task after enforcing rules for it.
func (g *Gate) taskCommand(ctx context.Context, auth types.Authentication, op, taskID string,
	rules func(*engine.Task) check.Composite, fn func(tx *engine.Tx, s *step, t *engine.Task) error) error {
	return g.run(ctx, auth, op, func(tx *engine.Tx, s *step) error {
		t, err := taskNotFound(tx, taskID)
		if err != nil {
			return err
		}
		if err := s.check(rules(t)); err != nil {
			return err
		}
		return fn(tx, s, t)
	})
}

func (g *Gate) SetAssignee(ctx context.Context, auth types.Authentication, taskID, userID string) error {
	return g.taskCommand(ctx, auth, "setAssignee", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		old := t.Assignee
		t.Assignee = userID
		return s.issue(g.provider.NewTaskAssignee(ctx, *t, old, userID))
	})
}

func (g *Gate) SetOwner(ctx context.Context, auth types.Authentication, taskID, userID string) error {
	return g.taskCommand(ctx, auth, "setOwner", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		old := t.Owner
		t.Owner = userID
		return s.issue(g.provider.NewTaskOwner(ctx, *t, old, userID))
	})
}

// Claim assigns an unassigned task to userID.
func (g *Gate) Claim(ctx context.Context, auth types.Authentication, taskID, userID string) error {
	return g.taskCommand(ctx, auth, "claim", taskID, workRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		if t.Assignee != "" && t.Assignee != userID && userID != "" {
			return common.NewErrorf(common.KindBadRequest, "Task '%s' is already claimed by someone else.", t.ID)
		}
		old := t.Assignee
		t.Assignee = userID
		return s.issue(g.provider.NewTaskAssignee(ctx, *t, old, userID))
	})
}

func (g *Gate) AddCandidateUser(ctx context.Context, auth types.Authentication, taskID, userID string) error {
	return g.taskCommand(ctx, auth, "addCandidateUser", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		if !slices.Contains(t.CandidateUsers, userID) {
			t.CandidateUsers = append(t.CandidateUsers, userID)
		}
		return s.issue(g.provider.NewTaskUserIdentityLink(ctx, *t, userID, provider.LinkCandidate))
	})
}

func (g *Gate) AddCandidateGroup(ctx context.Context, auth types.Authentication, taskID, groupID string) error {
	return g.taskCommand(ctx, auth, "addCandidateGroup", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		if !slices.Contains(t.CandidateGroups, groupID) {
			t.CandidateGroups = append(t.CandidateGroups, groupID)
		}
		return s.issue(g.provider.NewTaskGroupIdentityLink(ctx, *t, groupID, provider.LinkCandidate))
	})
}

func (g *Gate) DeleteCandidateUser(ctx context.Context, auth types.Authentication, taskID, userID string) error {
	return g.taskCommand(ctx, auth, "deleteCandidateUser", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		t.CandidateUsers = slices.DeleteFunc(t.CandidateUsers, func(id string) bool { return id == userID })
		return s.issue(g.provider.DeleteTaskUserIdentityLink(ctx, *t, userID, provider.LinkCandidate))
	})
}

func (g *Gate) DeleteCandidateGroup(ctx context.Context, auth types.Authentication, taskID, groupID string) error {
	return g.taskCommand(ctx, auth, "deleteCandidateGroup", taskID, assignRules, func(_ *engine.Tx, s *step, t *engine.Task) error {
		t.CandidateGroups = slices.DeleteFunc(t.CandidateGroups, func(id string) bool { return id == groupID })
		return s.issue(g.provider.DeleteTaskGroupIdentityLink(ctx, *t, groupID, provider.LinkCandidate))
	})
}

// Complete finishes a task, copying variables to its instance.
func (g *Gate) Complete(ctx context.Context, auth types.Authentication, taskID string, variables map[string]any) error {
	return g.taskCommand(ctx, auth, "complete", taskID, workRules, func(tx *engine.Tx, _ *step, t *engine.Task) error {
		return complete(tx, t, variables)
	})
}

func complete(tx *engine.Tx, t *engine.Task, variables map[string]any) error {
	if !t.Standalone() {
		for name, v := range variables {
			if _, err := tx.SetVariable(t.ProcessInstanceID, "", name, v); err != nil {
				return err
			}
		}
	}
	return tx.DeleteTask(t.ID)
}

func (g *Gate) CreateComment(ctx context.Context, auth types.Authentication, taskID, message string) (engine.Comment, error) {
	c := engine.Comment{ID: uuid.NewString(), UserID: auth.UserID, Message: message}
	err := g.taskCommand(ctx, auth, "createComment", taskID, updateRules, func(_ *engine.Tx, _ *step, t *engine.Task) error {
		t.Comments = append(t.Comments, c)
		return nil
	})
	return c, err
}

func commentIndex(t *engine.Task, commentID string) (int, error) {
	i := slices.IndexFunc(t.Comments, func(c engine.Comment) bool { return c.ID == commentID })
	if i < 0 {
		return 0, common.NewErrorf(common.KindNotFound, "No comment exists with commentId: %s and taskId: %s", commentID, t.ID)
	}
	return i, nil
}

func (g *Gate) UpdateComment(ctx context.Context, auth types.Authentication, taskID, commentID, message string) error {
	return g.taskCommand(ctx, auth, "updateComment", taskID, updateRules, func(_ *engine.Tx, _ *step, t *engine.Task) error {
		i, err := commentIndex(t, commentID)
		if err != nil {
			return err
		}
		t.Comments[i].Message = message
		return nil
	})
}

func (g *Gate) DeleteComment(ctx context.Context, auth types.Authentication, taskID, commentID string) error {
	return g.taskCommand(ctx, auth, "deleteComment", taskID, updateRules, func(_ *engine.Tx, _ *step, t *engine.Task) error {
		i, err := commentIndex(t, commentID)
		if err != nil {
			return err
		}
		t.Comments = slices.Delete(t.Comments, i, i+1)
		return nil
	})
}

// DeleteComments removes every comment of a task.
func (g *Gate) DeleteComments(ctx context.Context, auth types.Authentication, taskID string) error {
	return g.taskCommand(ctx, auth, "deleteComments", taskID, updateRules, func(_ *engine.Tx, _ *step, t *engine.Task) error {
		t.Comments = nil
		return nil
	})
}

func (g *Gate) SetTaskVariable(ctx context.Context, auth types.Authentication, taskID, name string, value any) error {
	return g.taskCommand(ctx, auth, "setTaskVariable", taskID, variableRules, func(tx *engine.Tx, _ *step, t *engine.Task) error {
		_, err := tx.SetVariable("", t.ID, name, value)
		return err
	})
}

func (g *Gate) RemoveTaskVariable(ctx context.Context, auth types.Authentication, taskID, name string) error {
	return g.taskCommand(ctx, auth, "removeTaskVariable", taskID, variableRules, func(tx *engine.Tx, _ *step, t *engine.Task) error {
		tx.RemoveVariable("", t.ID, name)
		return nil
	})
}
