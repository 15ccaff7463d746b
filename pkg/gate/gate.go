//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package gate authorizes imperative commands against the engine repository.
//
// Every command builds a [check.Composite] of the permissions that would allow
// it and fails with a *common.AuthorizationError naming all of them when none
// holds.  Disabled permissions are dropped from the composite, and a command
// whose composite is left empty proceeds.  Once authorized, the command
// mutates the repository and persists the authorizations the resource
// authorization provider issues for the change.  The mutation, the check and
// the persistence run under the repository lock; a failure at any point
// leaves the repository unchanged.
//
//	g := gate.New(repo, mgr, gate.WithProvider(defaultProvider))
//	err := g.SetAssignee(ctx, auth, "task-1", "demo")
package gate

import (
	"context"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/batch"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/metrics"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authz.gate")

const agent = "gate"

// Authorizer is the part of core.AuthorizationManager the gate needs.
type Authorizer interface {
	CheckAuthorization(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) error
	Authorizations() *store.Service
	Metrics() *metrics.Metrics
}

// Gate runs authorized commands.
type Gate struct {
	repo     *engine.Repository
	authz    Authorizer
	provider provider.Provider
	seeder   batch.Seeder
}

// Option configures a Gate.
type Option func(*Gate)

// WithProvider sets the provider consulted after mutations.  The default
// issues nothing.
func WithProvider(p provider.Provider) Option {
	return func(g *Gate) {
		g.provider = p
	}
}

// WithSeeder sets where created batches are seeded.  The default keeps
// them in memory.
func WithSeeder(s batch.Seeder) Option {
	return func(g *Gate) {
		g.seeder = s
	}
}

// New returns a Gate over repo.
func New(repo *engine.Repository, authz Authorizer, opts ...Option) *Gate {
	g := &Gate{repo: repo, authz: authz, provider: provider.Noop{}, seeder: batch.NewMemory()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// step is the state of one command while it holds the repository lock.
type step struct {
	ctx    context.Context
	g      *Gate
	op     string
	auth   types.Authentication
	issued []*model.Authorization
}

// check enforces every composite in turn.
func (s *step) check(cs ...check.Composite) error {
	for _, c := range cs {
		if err := s.g.authorize(s.ctx, s.auth, s.op, c); err != nil {
			return err
		}
	}
	return nil
}

// issue collects provider output for persistence.
func (s *step) issue(list []*model.Authorization, err error) error {
	if err != nil {
		return err
	}
	s.issued = append(s.issued, list...)
	return nil
}

// run executes fn as command op.
func (g *Gate) run(ctx context.Context, auth types.Authentication, op string, fn func(tx *engine.Tx, s *step) error) error {
	logger.Trace(agent, op, "Enter")
	defer logger.Trace(agent, op, "Exit")

	return g.repo.Update(func(tx *engine.Tx) error {
		s := &step{ctx: ctx, g: g, op: op, auth: auth}
		if err := fn(tx, s); err != nil {
			return err
		}
		return g.persist(ctx, op, s.issued)
	})
}

func (g *Gate) authorize(ctx context.Context, auth types.Authentication, op string, c check.Composite) error {
	err := g.authz.CheckAuthorization(ctx, auth, c)
	if errors.Is(err, common.ErrAuthorizationDenied) {
		g.authz.Metrics().GateDenied(op)
		logger.Debugf(agent, op, "denied for %s: %v", auth.UserID, err)
	}
	return err
}

// persist saves list, restoring the previous version of every record already
// written when a save fails.
func (g *Gate) persist(ctx context.Context, op string, list []*model.Authorization) error {
	svc := g.authz.Authorizations()
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	for _, a := range list {
		prev, err := svc.Store().Get(ctx, a.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			rollback()
			return err
		}
		if err := svc.Save(ctx, a); err != nil {
			logger.Warnf(agent, op, "provider authorization %s not saved: %v", a.ID, err)
			rollback()
			return err
		}

		id := a.ID
		if prev == nil {
			undo = append(undo, func() { _ = svc.Delete(ctx, id) })
		} else {
			undo = append(undo, func() { _ = svc.Save(ctx, prev) })
		}
	}
	return nil
}

func on(p resources.Permission, r resources.Resource, id string) check.Permission {
	return check.On(p, r, id)
}

func onDefinition(p resources.Permission, key string) check.Permission {
	return check.On(p, resources.ProcessDefinition, key)
}

func onInstance(p resources.Permission, id string) check.Permission {
	return check.On(p, resources.ProcessInstance, id)
}

func onTask(p resources.Permission, id string) check.Permission {
	return check.On(p, resources.Task, id)
}

func taskNotFound(tx *engine.Tx, id string) (*engine.Task, error) {
	t, err := tx.Task(id)
	if err != nil {
		return nil, common.NewErrorf(common.KindNotFound, "Cannot find task with id %s", id)
	}
	return t, nil
}
