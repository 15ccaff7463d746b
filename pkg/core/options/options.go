//
//  Copyright © Manetu Inc. All rights reserved.
//
// shared between pkg/core and internal/core, and thus must be in a separate package to avoid circular dependencies

package options

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/prometheus/client_golang/prometheus"
)

// ManagerOptions configures an authorization manager.  Nil fields select the
// defaults of core.NewAuthorizationManager.
type ManagerOptions struct {
	AccessLogFactory accesslog.Factory
	Store            store.Store
	Registry         *resources.Registry
	GroupResolver    groups.Resolver
	// Registerer receives the decision metrics.  Nil with metrics enabled
	// selects the default Prometheus registerer.
	Registerer prometheus.Registerer
	// Settings overrides the live configuration.  When nil the manager reads
	// config.Current() on every check.
	Settings *config.Settings
}

// ManagerOptionsFunc is a function that modifies ManagerOptions.
type ManagerOptionsFunc func(*ManagerOptions)

// WithAccessLog configures the access log stream for the manager.
func WithAccessLog(factory accesslog.Factory) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.AccessLogFactory = factory
	}
}

// WithStore configures the authorization record store.
func WithStore(s store.Store) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.Store = s
	}
}

// WithRegistry configures the resource and permission catalog.
func WithRegistry(reg *resources.Registry) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.Registry = reg
	}
}

// WithGroupResolver configures how group memberships are resolved.
func WithGroupResolver(r groups.Resolver) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.GroupResolver = r
	}
}

// WithMetrics configures where decision metrics are registered.
func WithMetrics(registerer prometheus.Registerer) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.Registerer = registerer
	}
}

// WithSettings pins the manager to s instead of the live configuration.
func WithSettings(s config.Settings) ManagerOptionsFunc {
	return func(o *ManagerOptions) {
		o.Settings = &s
	}
}

// AuthzOptions represents configuration options for a single check.
type AuthzOptions struct {
	Probe    bool
	Disabled bool
}

// AuthzOptionsFunc is a function that modifies AuthzOptions.
type AuthzOptionsFunc func(*AuthzOptions)

// SetProbeMode configures the probe mode for a check.  Probe mode evaluates
// authorizations but does not log decisions, which is helpful for returning
// information about what a user may do without impacting the audit trail.
// For instance, a UI can ask whether the current user could delete a process
// definition to decide whether to render the delete button.  Recording that as
// an attempt to delete would be misleading.
//
// Probe mode is disabled by default. Use with caution and only in places where
// you are sure that the decision doesn't require logging.
func SetProbeMode(probe bool) AuthzOptionsFunc {
	return func(o *AuthzOptions) {
		o.Probe = probe
	}
}

// WithAuthorizationDisabled makes every check pass without consulting the
// store, as if authorization.enabled were false for this call only.
func WithAuthorizationDisabled() AuthzOptionsFunc {
	return func(o *AuthzOptions) {
		o.Disabled = true
	}
}

type ctxKey struct{}

// NewContext returns a context carrying opts.  Checks taken with the returned
// context apply them before their own options.
func NewContext(ctx context.Context, opts ...AuthzOptionsFunc) context.Context {
	o := FromContext(ctx)
	for _, f := range opts {
		f(&o)
	}
	return context.WithValue(ctx, ctxKey{}, o)
}

// FromContext returns the options carried by ctx.
func FromContext(ctx context.Context) AuthzOptions {
	if o, ok := ctx.Value(ctxKey{}).(AuthzOptions); ok {
		return o
	}
	return AuthzOptions{}
}

// Resolve merges the options carried by ctx with opts.
func Resolve(ctx context.Context, opts ...AuthzOptionsFunc) AuthzOptions {
	o := FromContext(ctx)
	for _, f := range opts {
		f(&o)
	}
	return o
}
