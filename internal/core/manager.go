//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/metrics"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/memory"
	"github.com/manetu/authzengine/pkg/core/types"
)

var logger = logging.GetLogger("authz.manager")

const agent = "manager"

// Evaluator is implemented by stores that can take a decision without
// returning the candidate records, such as the postgres store.
type Evaluator interface {
	Evaluate(ctx context.Context, d check.Descriptor, includeRevokes bool) (bool, error)
}

// Manager is the authorization decision engine.  It holds no per-call state
// and is safe for concurrent use.
type Manager struct {
	svc      *store.Service
	reg      *resources.Registry
	resolver groups.Resolver
	audit    accesslog.Stream
	auditEnv map[string]string
	metrics  *metrics.Metrics
	pinned   *config.Settings
	revokes  *revokeCache
}

// NewManager builds a manager from o.  The settings in effect are validated
// eagerly, including the names of disabled permissions.
func NewManager(o *options.ManagerOptions) (*Manager, error) {
	reg := o.Registry
	if reg == nil {
		reg = resources.Default
	}
	s := o.Store
	if s == nil {
		s = memory.New()
	}
	factory := o.AccessLogFactory
	if factory == nil {
		factory = accesslog.NewNullFactory()
	}

	m := &Manager{
		svc:      store.NewService(s, reg),
		reg:      reg,
		resolver: o.GroupResolver,
		pinned:   o.Settings,
		auditEnv: map[string]string{},
	}

	settings := m.settings()
	if err := m.validate(settings); err != nil {
		return nil, err
	}
	if o.Settings == nil {
		m.auditEnv = config.GetAuditEnv()
	}
	if settings.MetricsEnabled {
		m.metrics = metrics.New(o.Registerer)
	}

	revokes, err := newRevokeCache(s, m.metrics)
	if err != nil {
		return nil, err
	}
	m.revokes = revokes
	m.svc.OnWrite(revokes.invalidate)

	al, err := factory.NewStream()
	if err != nil {
		return nil, err
	}
	m.audit = al

	logger.SysDebugf("authorization manager ready: %s", settings)
	return m, nil
}

func (m *Manager) settings() config.Settings {
	if m.pinned != nil {
		return *m.pinned
	}
	return config.Current()
}

func (m *Manager) validate(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := check.ParseRevokeMode(s.CheckRevokes); err != nil {
		return err
	}
	for _, name := range s.DisabledPermissions {
		if !m.reg.KnownName(name) {
			return common.NewErrorf(common.KindBadConfiguration,
				"Unknown permission '%s' in configuration property 'disabledPermissions'.", name)
		}
	}
	return nil
}

// Service returns the validating record store the manager decides against.
// Writes must go through it so that cached revoke state stays current.
func (m *Manager) Service() *store.Service { return m.svc }

// Registry returns the resource catalog.
func (m *Manager) Registry() *resources.Registry { return m.reg }

// Metrics returns the decision metrics, nil when disabled.
func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

// Settings returns the settings a check taken now would use.
func (m *Manager) Settings() config.Settings { return m.settings() }

// Close releases the access log stream.
func (m *Manager) Close() {
	m.audit.Close()
}

// Enabled reports whether checks taken with ctx are enforced.
func (m *Manager) Enabled(ctx context.Context, opts ...options.AuthzOptionsFunc) bool {
	return m.settings().AuthorizationEnabled && !options.Resolve(ctx, opts...).Disabled
}

// IsAdmin reports whether auth is an administrator user or belongs to an
// administrator group.
func (m *Manager) IsAdmin(auth types.Authentication) bool {
	s := m.settings()
	for _, u := range s.AdminUsers {
		if u == auth.UserID {
			return true
		}
	}
	for _, admin := range s.AdminGroups {
		for _, g := range auth.GroupIDs {
			if g == admin {
				return true
			}
		}
	}
	return false
}

// IsDisabled reports whether the permission name p is currently disabled.
func (m *Manager) IsDisabled(p resources.Permission) bool {
	for _, name := range m.settings().DisabledPermissions {
		if name == p.Name {
			return true
		}
	}
	return false
}

// FilterDisabled removes the disabled alternatives of c.  empty is true when
// c had alternatives and all of them were removed.
func (m *Manager) FilterDisabled(c check.Composite) (enabled check.Composite, empty bool) {
	kept := make([]check.Permission, 0, len(c.Checks))
	for _, p := range c.Checks {
		if !m.IsDisabled(p.Permission) {
			kept = append(kept, p)
		}
	}
	return check.Composite{Checks: kept}, len(c.Checks) > 0 && len(kept) == 0
}

// FilterAuthenticatedGroupIDs normalizes the group ids used for a decision:
// entries are de-duplicated and sorted and empty ids are dropped.  A nil input
// yields an empty slice.
func (m *Manager) FilterAuthenticatedGroupIDs(groupIDs []string) []string {
	return types.NormalizeIDs(groupIDs)
}

// Authenticate resolves the groups of userID through the configured resolver.
func (m *Manager) Authenticate(ctx context.Context, userID string) (types.Authentication, error) {
	return groups.CurrentAuthentication(ctx, m.resolver, userID)
}

// Descriptor binds p to auth under the current revoke mode.
func (m *Manager) Descriptor(ctx context.Context, auth types.Authentication, p check.Permission) (check.Descriptor, error) {
	s := m.settings()
	mode, err := check.ParseRevokeMode(s.CheckRevokes)
	if err != nil {
		return check.Descriptor{}, err
	}
	auth.GroupIDs = m.FilterAuthenticatedGroupIDs(auth.GroupIDs)
	return check.NewDescriptor(auth, p, mode, m.Enabled(ctx)), nil
}

// RunAsCustomCode runs fn the way user supplied code is run: with
// authorization disabled on its context unless authorization.customcode is
// set.
func (m *Manager) RunAsCustomCode(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.settings().CustomCodeAuthorization {
		ctx = options.NewContext(ctx, options.WithAuthorizationDisabled())
	}
	return fn(ctx)
}

// Evaluate decides the composite c for auth.  It is satisfied when any
// alternative is.  Checking a disabled permission is a BadRequest error.
func (m *Manager) Evaluate(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) (bool, error) {
	for _, p := range c.Checks {
		if m.IsDisabled(p.Permission) {
			return false, common.NewErrorf(common.KindBadRequest, "The permission '%s' is disabled.", p.Permission.Name)
		}
	}
	return m.evaluate(ctx, auth, c, opts...)
}

// CheckAuthorization enforces c for a command.  Disabled alternatives are
// dropped; a composite left with none passes.  A denial is returned as a
// *common.AuthorizationError listing every remaining alternative.
func (m *Manager) CheckAuthorization(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) error {
	enabled, empty := m.FilterDisabled(c)
	if empty {
		logger.Debugf(agent, "checkAuthorization", "every alternative is disabled, passing: %+v", c.Missing())
		m.record(ctx, auth, nil, accesslog.Grant, accesslog.ReasonAllDisabled, time.Now(), opts)
		return nil
	}

	allowed, err := m.evaluate(ctx, auth, enabled, opts...)
	if err != nil {
		return err
	}
	if !allowed {
		return common.NewAuthorizationError(auth.UserID, enabled.Missing()...)
	}
	return nil
}

func (m *Manager) evaluate(ctx context.Context, auth types.Authentication, c check.Composite, opts ...options.AuthzOptionsFunc) (bool, error) {
	logger.Trace(agent, "evaluate", "Enter")
	defer logger.Trace(agent, "evaluate", "Exit")

	start := time.Now()
	auth.GroupIDs = m.FilterAuthenticatedGroupIDs(auth.GroupIDs)

	if !m.Enabled(ctx, opts...) {
		m.record(ctx, auth, nil, accesslog.Grant, accesslog.ReasonDisabled, start, opts)
		return true, nil
	}
	if m.IsAdmin(auth) {
		m.record(ctx, auth, nil, accesslog.Grant, accesslog.ReasonAdmin, start, opts)
		return true, nil
	}

	checks := make([]accesslog.Check, 0, len(c.Checks))
	decision := accesslog.Deny
	reason := ""
	for _, p := range c.Checks {
		d, err := m.Descriptor(ctx, auth, p)
		if err != nil {
			return false, err
		}

		o, err := m.decide(ctx, d)
		if err != nil {
			return false, err
		}
		m.metrics.Decision(p.Resource.Name, p.Permission.Name, o.allowed, time.Since(start))

		entry := accesslog.Check{
			Permission: p.Permission.Name,
			Resource:   p.Resource.Name,
			ResourceID: d.ResourceID(),
			Decision:   accesslog.Deny,
			Scope:      o.scope,
		}
		if o.allowed {
			entry.Decision = accesslog.Grant
			decision = accesslog.Grant
		}
		checks = append(checks, entry)
		if o.allowed {
			break
		}
		// a revoke on an earlier alternative denies the whole composite
		if o.revoked {
			reason = accesslog.ReasonRevoked
			break
		}
	}

	if decision == accesslog.Deny && reason == "" {
		reason = accesslog.ReasonNoMatch
	}
	m.record(ctx, auth, checks, decision, reason, start, opts)
	return decision == accesslog.Grant, nil
}

// Decide takes the decision for a single bound descriptor without access
// logging.  Like Evaluate it grants when d was bound with authorization
// disabled or for an administrator.
func (m *Manager) Decide(ctx context.Context, d check.Descriptor) (bool, error) {
	if !d.Enabled() || m.IsAdmin(types.NewAuthentication(d.UserID(), d.GroupIDs())) {
		return true, nil
	}
	o, err := m.decide(ctx, d)
	return o.allowed, err
}

// outcome is the decision for one descriptor.  revoked is set when a revoke
// scope took the deny, as opposed to no scope granting.
type outcome struct {
	allowed bool
	revoked bool
	scope   string
}

func (m *Manager) decide(ctx context.Context, d check.Descriptor) (outcome, error) {
	includeRevokes, err := m.revokes.include(ctx, d.RevokeMode(), d.Resource().ID)
	if err != nil {
		return outcome{}, err
	}

	if ev, ok := m.svc.Store().(Evaluator); ok {
		allowed, err := ev.Evaluate(ctx, d, includeRevokes)
		if err != nil || allowed || !includeRevokes {
			return outcome{allowed: allowed, scope: ScopeDatabase}, err
		}
		// replay the denial over the candidates to find a revoking scope
	}

	records, err := m.svc.Store().Candidates(ctx, d.Match(includeRevokes))
	if err != nil {
		return outcome{}, err
	}
	allowed, scope := resolve(d, records, includeRevokes)
	logger.Tracef(agent, "decide", "%s %s/%s for %s: %t (scope %q, %d candidates)",
		d.Permission().Name, d.Resource().Name, d.ResourceID(), d.UserID(), allowed, scope, len(records))
	return outcome{allowed: allowed, revoked: !allowed && scope != "", scope: scope}, nil
}

func (m *Manager) record(ctx context.Context, auth types.Authentication, checks []accesslog.Check,
	decision accesslog.Decision, reason string, start time.Time, opts []options.AuthzOptionsFunc) {
	if options.Resolve(ctx, opts...).Probe {
		return
	}

	r := &accesslog.Record{
		Metadata: accesslog.Metadata{
			ID:        uuid.NewString(),
			Timestamp: start.UTC(),
			Env:       m.auditEnv,
		},
		Principal: accesslog.Principal{UserID: auth.UserID, GroupIDs: auth.GroupIDs},
		Checks:    checks,
		Decision:  decision,
		Reason:    reason,
		Duration:  time.Since(start).Nanoseconds(),
	}
	if err := m.audit.Send(r); err != nil {
		logger.Errorf(agent, "record", "unable to send access record: %+v", err)
	}
}

// IsUserAuthorized decides a single permission for userID and groupIDs.  A
// nil groupIDs is the same as no groups.  resourceID "" checks the wildcard.
func (m *Manager) IsUserAuthorized(ctx context.Context, userID string, groupIDs []string, p resources.Permission,
	r resources.Resource, resourceID string, opts ...options.AuthzOptionsFunc) (bool, error) {
	return m.Evaluate(ctx, types.NewAuthentication(userID, groupIDs), check.AnyOf(check.On(p, r, resourceID)), opts...)
}
