//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package core provides the primary interface of the authorization engine:
// the [AuthorizationManager], which decides whether a principal (a user and
// its groups) holds a permission on a resource.
//
// Decisions are taken against GRANT, REVOKE and GLOBAL authorization records
// held by a [store.Store].  The most specific record scope wins: a record for
// the user beats one for its groups, which beats a global one, and at each
// level a record on the exact resource id beats one on the wildcard "*".
//
// # Quick Start
//
// Create a manager with default options (stdout access log, memory store):
//
//	m, err := core.NewAuthorizationManager()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Grant a permission and check it:
//
//	a := m.Authorizations().CreateAuthorization(model.Grant, resources.Task, "task-1")
//	a.UserID = "demo"
//	a.AddPermission(resources.TaskPerms.Read)
//	_ = m.Authorizations().Save(ctx, a)
//
//	ok, err := m.IsUserAuthorized(ctx, "demo", nil, resources.TaskPerms.Read, resources.Task, "task-1")
//
// # Configuration
//
// The manager supports functional options:
//
//	m, err := core.NewAuthorizationManager(
//	    options.WithStore(pgStore),
//	    options.WithGroupResolver(groups.NewStatic(memberships)),
//	    options.WithAccessLog(accesslog.NewStdoutFactory()),
//	)
//
// [NewAuthorizationManagerFromConfig] instead selects the store and group
// resolver from the store.backend and groups.backend configuration keys.
//
// # Probe Mode
//
// For UI capabilities discovery without impacting audit logs, use probe mode:
//
//	ok, err := m.IsUserAuthorized(ctx, "demo", nil, p, r, id, options.SetProbeMode(true))
//
// See the [options] package for all available configuration options.
package core

import (
	"context"

	"github.com/manetu/authzengine/internal/core"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/metrics"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/postgres"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authz")
var agent = "manager"

// AuthorizationManager is the primary interface for making authorization
// decisions.
//
// Implementations of AuthorizationManager are safe for concurrent use by
// multiple goroutines.
type AuthorizationManager interface {
	// IsUserAuthorized decides p on (r, resourceID) for userID and groupIDs.
	// A nil groupIDs is treated as no groups, and a resourceID of "" checks
	// the wildcard records only.  Denial is (false, nil); checking a disabled
	// permission fails with common.ErrBadRequest.
	IsUserAuthorized(ctx context.Context, userID string, groupIDs []string, p resources.Permission,
		r resources.Resource, resourceID string, opts ...options.AuthzOptionsFunc) (bool, error)

	// IsAuthorized is IsUserAuthorized for an Authentication.
	IsAuthorized(ctx context.Context, auth types.Authentication, p resources.Permission,
		r resources.Resource, resourceID string, opts ...options.AuthzOptionsFunc) (bool, error)

	// Evaluate decides a composite check; it is satisfied when any of its
	// alternatives is.
	Evaluate(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) (bool, error)

	// CheckAuthorization enforces a composite check for a command.  Disabled
	// alternatives are dropped, and a check left without alternatives passes.
	// A denial is a *common.AuthorizationError naming every alternative.
	CheckAuthorization(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) error

	// Descriptor binds a check to auth under the current revoke mode.
	Descriptor(ctx context.Context, auth types.Authentication, p resources.Permission, r resources.Resource, resourceID string) (check.Descriptor, error)

	// Decide evaluates a bound descriptor without access logging.  A
	// descriptor bound with authorization disabled, or for an administrator,
	// is granted.
	Decide(ctx context.Context, d check.Descriptor) (bool, error)

	// Compile renders d as a SQL predicate over act_ru_authorization.  When
	// resourceIDExpr is not empty it names the column of an outer query that
	// holds the resource id to check.
	Compile(ctx context.Context, d check.Descriptor, resourceIDExpr string) (store.Predicate, error)

	// FilterAuthenticatedGroupIDs normalizes the group ids a decision is
	// taken with.  A nil input yields an empty slice.
	FilterAuthenticatedGroupIDs(groupIDs []string) []string

	// IsAdmin reports whether auth is a configured administrator.
	IsAdmin(auth types.Authentication) bool

	// Enabled reports whether authorization is enforced for ctx.
	Enabled(ctx context.Context, opts ...options.AuthzOptionsFunc) bool

	// IsDisabled reports whether the permission's name is disabled.
	IsDisabled(p resources.Permission) bool

	// FilterDisabled removes disabled alternatives from c; empty is true
	// when every alternative was removed.
	FilterDisabled(c check.Composite) (enabled check.Composite, empty bool)

	// Authenticate resolves userID's groups.
	Authenticate(ctx context.Context, userID string) (types.Authentication, error)

	// RunAsCustomCode runs fn with authorization disabled on its context
	// unless authorization.customcode is set.
	RunAsCustomCode(ctx context.Context, fn func(ctx context.Context) error) error

	// Authorizations returns the record store decisions are taken against.
	Authorizations() *store.Service

	// Registry returns the resource catalog.
	Registry() *resources.Registry

	// Metrics returns the decision metrics; nil when disabled.
	Metrics() *metrics.Metrics

	// Settings returns the configuration a check taken now would use.
	Settings() config.Settings

	// Close releases the manager and any backend it opened.
	Close()
}

// AuthorizationManagerImpl is the default implementation of the
// [AuthorizationManager] interface.
//
// It wraps the internal decision engine and can be embedded by applications
// that need to extend the manager, such as adding context management.
//
// Use [NewAuthorizationManager] to create a properly initialized instance.
type AuthorizationManagerImpl struct {
	*core.Manager
	closers []func()
}

var _ AuthorizationManager = (*AuthorizationManagerImpl)(nil)

// NewAuthorizationManager creates and initializes a new [AuthorizationManager].
//
// By default the manager uses a stdout access log, an in-memory store and a
// static group resolver seeded from groups.static.  NewAuthorizationManager
// loads configuration from environment variables and config files first; see
// the [config] package for details.
//
// Returns an error if configuration loading fails or the configuration is
// invalid.
func NewAuthorizationManager(managerOptions ...options.ManagerOptionsFunc) (AuthorizationManager, error) {
	return newManager(nil, managerOptions...)
}

func newManager(closers []func(), managerOptions ...options.ManagerOptionsFunc) (*AuthorizationManagerImpl, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	opts := &options.ManagerOptions{
		AccessLogFactory: accesslog.NewStdoutFactory(),
	}
	for _, o := range managerOptions {
		o(opts)
	}
	if opts.GroupResolver == nil {
		s := config.Current()
		if opts.Settings != nil {
			s = *opts.Settings
		}
		opts.GroupResolver = groups.NewStatic(s.StaticGroups)
	}

	instance, err := core.NewManager(opts)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	return &AuthorizationManagerImpl{Manager: instance, closers: closers}, nil
}

// IsAuthorized decides p on (r, resourceID) for auth.
func (m *AuthorizationManagerImpl) IsAuthorized(ctx context.Context, auth types.Authentication, p resources.Permission,
	r resources.Resource, resourceID string, opts ...options.AuthzOptionsFunc) (bool, error) {
	logger.Debug(agent, "IsAuthorized", "Enter")
	defer logger.Debug(agent, "IsAuthorized", "Exit")

	return m.Manager.Evaluate(ctx, auth, check.AnyOf(check.On(p, r, resourceID)), opts...)
}

// Descriptor binds (p, r, resourceID) to auth.
func (m *AuthorizationManagerImpl) Descriptor(ctx context.Context, auth types.Authentication, p resources.Permission,
	r resources.Resource, resourceID string) (check.Descriptor, error) {
	return m.Manager.Descriptor(ctx, auth, check.On(p, r, resourceID))
}

// Compile renders d as a SQL predicate.  Revoke tests are rendered when the
// descriptor's mode is ALWAYS, or in AUTO mode when a revoke exists for its
// resource type.
func (m *AuthorizationManagerImpl) Compile(ctx context.Context, d check.Descriptor, resourceIDExpr string) (store.Predicate, error) {
	includeRevokes := d.RevokeMode() == check.Always
	if !includeRevokes {
		var err error
		if includeRevokes, err = m.Authorizations().Store().HasRevokes(ctx, d.Resource().ID); err != nil {
			return store.Predicate{}, err
		}
	}
	return postgres.CompileCheck(d, includeRevokes, resourceIDExpr), nil
}

// Authorizations returns the record store.
func (m *AuthorizationManagerImpl) Authorizations() *store.Service {
	return m.Manager.Service()
}

// Close releases the access log and any backend opened by
// [NewAuthorizationManagerFromConfig].
func (m *AuthorizationManagerImpl) Close() {
	m.Manager.Close()
	for _, c := range m.closers {
		c()
	}
}
