//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package query lists engine entities through the authorization filter.
//
// A row is returned only when the authenticated principal satisfies one of
// the eligibility alternatives for its type; rows are suppressed, never
// altered.  Administrators and callers with authorization disabled see every
// row.
//
//	q := query.New(repo, mgr)
//	tasks, err := q.Tasks(auth).ProcessDefinitionKey("invoice").List(ctx)
package query

import (
	"context"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/metrics"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

var logger = logging.GetLogger("authz.query")

const agent = "query"

// Authorizer is the part of core.AuthorizationManager the filter needs.
type Authorizer interface {
	Enabled(ctx context.Context, opts ...options.AuthzOptionsFunc) bool
	IsAdmin(auth types.Authentication) bool
	IsDisabled(p resources.Permission) bool
	FilterAuthenticatedGroupIDs(groupIDs []string) []string
	Descriptor(ctx context.Context, auth types.Authentication, p resources.Permission, r resources.Resource, resourceID string) (check.Descriptor, error)
	Decide(ctx context.Context, d check.Descriptor) (bool, error)
	CheckAuthorization(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) error
	Settings() config.Settings
	Metrics() *metrics.Metrics
}

// Service creates queries over a repository.
type Service struct {
	repo  *engine.Repository
	authz Authorizer
}

// New returns a Service filtering repo through authz.
func New(repo *engine.Repository, authz Authorizer) *Service {
	return &Service{repo: repo, authz: authz}
}

var (
	jobRead           = resources.MustLookup(resources.Job, "READ")
	jobDefinitionRead = resources.MustLookup(resources.JobDefinition, "READ")
	deploymentRead    = resources.MustLookup(resources.Deployment, "READ")
)

// base is embedded by every query.
type base struct {
	svc  *Service
	name string
	auth types.Authentication
	opts []options.AuthzOptionsFunc
}

func (s *Service) base(name string, auth types.Authentication, opts []options.AuthzOptionsFunc) base {
	return base{svc: s, name: name, auth: auth, opts: opts}
}

type memoKey struct {
	resource int
	name     string
	id       string
}

// session is one execution of a query.  Decisions are memoized for its
// lifetime.
type session struct {
	ctx          context.Context
	authz        Authorizer
	auth         types.Authentication
	opts         []options.AuthzOptionsFunc
	unrestricted bool
	settings     config.Settings
	memo         map[memoKey]bool
}

func (b *base) open(ctx context.Context) *session {
	auth := b.auth
	auth.GroupIDs = b.svc.authz.FilterAuthenticatedGroupIDs(auth.GroupIDs)
	return &session{
		ctx:          ctx,
		authz:        b.svc.authz,
		auth:         auth,
		opts:         b.opts,
		unrestricted: !b.svc.authz.Enabled(ctx, b.opts...) || b.svc.authz.IsAdmin(auth),
		settings:     b.svc.authz.Settings(),
		memo:         make(map[memoKey]bool),
	}
}

// allowed reports whether any alternative holds.  Disabled alternatives are
// skipped; when every alternative is disabled the row is visible.
func (s *session) allowed(alternatives ...check.Permission) (bool, error) {
	if s.unrestricted {
		return true, nil
	}

	checked := 0
	for _, p := range alternatives {
		if s.authz.IsDisabled(p.Permission) {
			continue
		}
		checked++

		key := memoKey{resource: p.Resource.ID, name: p.Permission.Name, id: p.ResourceID}
		ok, seen := s.memo[key]
		if !seen {
			d, err := s.authz.Descriptor(s.ctx, s.auth, p.Permission, p.Resource, p.ResourceID)
			if err != nil {
				return false, err
			}
			if ok, err = s.authz.Decide(s.ctx, d); err != nil {
				return false, err
			}
			s.memo[key] = ok
		}
		if ok {
			return true, nil
		}
	}
	return checked == 0, nil
}

// gate enforces c for the whole query.
func (s *session) gate(c check.Composite) error {
	if s.unrestricted {
		return nil
	}
	return s.authz.CheckAuthorization(s.ctx, s.auth, c, s.opts...)
}

// filter keeps the rows satisfying one of the alternatives rules returns
// for them.
func filter[T any](s *session, name string, rows []T, rules func(T) []check.Permission) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		ok, err := s.allowed(rules(row)...)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	if suppressed := len(rows) - len(out); suppressed > 0 {
		logger.Tracef(agent, name, "suppressed %d of %d rows for %s", suppressed, len(rows), s.auth.UserID)
		s.authz.Metrics().Suppressed(name, suppressed)
	}
	return out, nil
}

func single[T any](rows []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, common.NewErrorf(common.KindBadRequest, "Query return %d results instead of max 1", len(rows))
	}
}

func count[T any](rows []T, err error) (int, error) {
	return len(rows), err
}

// instanceRules are the alternatives that make the rows of an instance
// visible.
func instanceRules(instanceID, definitionKey string) []check.Permission {
	return []check.Permission{
		check.On(resources.ProcessInstancePerms.Read, resources.ProcessInstance, instanceID),
		check.On(resources.ProcessDefinitionPerms.ReadInstance, resources.ProcessDefinition, definitionKey),
	}
}

func taskRules(t engine.Task) []check.Permission {
	rules := []check.Permission{check.On(resources.TaskPerms.Read, resources.Task, t.ID)}
	if !t.Standalone() {
		rules = append(rules, check.On(resources.ProcessDefinitionPerms.ReadTask, resources.ProcessDefinition, t.DefinitionKey))
	}
	return rules
}

func variableRules(enforceSpecific bool) func(engine.VariableInstance) []check.Permission {
	return func(v engine.VariableInstance) []check.Permission {
		pd := resources.ProcessDefinitionPerms
		switch {
		case v.TaskID != "" && enforceSpecific:
			rules := []check.Permission{check.On(resources.TaskPerms.ReadVariable, resources.Task, v.TaskID)}
			if v.ProcessInstanceID != "" {
				rules = append(rules, check.On(pd.ReadTaskVariable, resources.ProcessDefinition, v.DefinitionKey))
			}
			return rules
		case v.TaskID != "":
			rules := []check.Permission{check.On(resources.TaskPerms.Read, resources.Task, v.TaskID)}
			if v.ProcessInstanceID != "" {
				rules = append(rules, check.On(pd.ReadTask, resources.ProcessDefinition, v.DefinitionKey))
			}
			return rules
		case enforceSpecific:
			return []check.Permission{check.On(pd.ReadInstanceVariable, resources.ProcessDefinition, v.DefinitionKey)}
		default:
			return instanceRules(v.ProcessInstanceID, v.DefinitionKey)
		}
	}
}
