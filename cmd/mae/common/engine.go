//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/bundle"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/opa"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
	"github.com/manetu/authzengine/pkg/provider/rego"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("mae")

const agent = "cli"

// DefaultProviderPackage is the Rego package queried when --provider-package
// is not given.
const DefaultProviderPackage = "provider"

// CliManager is a manager seeded from the bundles named on the command line.
type CliManager struct {
	core.AuthorizationManager
	Bundle     *bundle.Bundle // nil when no bundle was given
	Repository *engine.Repository
	Summary    bundle.Summary
	closers    []func()
}

// NewCliManager creates a manager from the CLI flags and applies the --bundle
// files to it.  Access records are written to stdout.
//
// When persistent is set the store and group backends follow the
// configuration and the bundles are optional, otherwise every piece of state
// lives in memory.
func NewCliManager(ctx context.Context, cmd *cli.Command, stdout io.Writer, persistent bool) (*CliManager, error) {
	paths := cmd.StringSlice("bundle")
	if len(paths) == 0 && !persistent {
		return nil, fmt.Errorf("at least one bundle must be specified")
	}

	var (
		b   *bundle.Bundle
		err error
	)
	if len(paths) > 0 {
		if b, err = bundle.Load(paths...); err != nil {
			return nil, err
		}
	}

	if err := config.Load(); err != nil {
		return nil, err
	}
	s := config.Current()

	opts := []options.ManagerOptionsFunc{options.WithAccessLog(accesslog.NewIoWriterFactory(stdout))}
	var (
		members bundle.MembershipWriter
		closers []func()
	)
	switch {
	case persistent && s.GroupsBackend == "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		r := groups.NewRedis(client, s.RedisPrefix)
		members = r
		opts = append(opts, options.WithGroupResolver(groups.NewDeduped(r)))
	default:
		static := groups.NewStatic(s.StaticGroups)
		members = static
		opts = append(opts, options.WithGroupResolver(static))
	}

	var m core.AuthorizationManager
	if persistent {
		m, err = core.NewAuthorizationManagerFromConfig(ctx, opts...)
	} else {
		m, err = core.NewAuthorizationManager(opts...)
	}
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	cm := &CliManager{AuthorizationManager: m, Bundle: b, Repository: engine.New(), closers: closers}

	if b == nil {
		return cm, nil
	}

	p, err := newProvider(cmd, m.Authorizations(), m.Settings().DefaultTaskPermission)
	if err != nil {
		cm.Close()
		return nil, err
	}

	cm.Summary, err = b.Apply(ctx, bundle.Target{
		Authorizations: m.Authorizations(),
		Memberships:    members,
		Repository:     cm.Repository,
		Provider:       p,
	})
	if err != nil {
		cm.Close()
		return nil, err
	}

	logger.Debugf(agent, "init", "loaded %s: %d authorizations, %d memberships, %d provided",
		b.Metadata.Name, cm.Summary.Authorizations, cm.Summary.Memberships, cm.Summary.Provided)
	return cm, nil
}

// Close releases the manager and the membership backend.
func (cm *CliManager) Close() {
	cm.AuthorizationManager.Close()
	for _, c := range cm.closers {
		c()
	}
}

// newProvider returns the Rego provider named by --provider, or the default
// task provider.
func newProvider(cmd *cli.Command, svc *store.Service, taskPermission string) (provider.Provider, error) {
	path := cmd.String("provider")
	if path == "" {
		return provider.NewDefault(svc, taskPermission)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, fmt.Errorf("failed to read provider: %w", err)
	}

	pkg := cmd.String("provider-package")
	if pkg == "" {
		pkg = DefaultProviderPackage
	}
	return rego.New(svc, pkg, opa.Modules{filepath.Base(path): string(data)},
		opa.WithDefaultTracing(cmd.Root().Bool("trace")))
}

// Decide answers req.  The groups of the request are combined with the
// memberships the bundles declare for the user.
func Decide(ctx context.Context, m core.AuthorizationManager, req *types.CheckRequest) (bool, error) {
	if req.UserID == "" {
		return false, common.NewError(common.KindBadRequest, "userId is required")
	}
	r, p, err := m.Registry().Resolve(req.Resource, req.Permission)
	if err != nil {
		return false, err
	}

	auth, err := m.Authenticate(ctx, req.UserID)
	if err != nil {
		return false, err
	}
	ids := types.NormalizeIDs(append(auth.GroupIDs, req.GroupIDs...))

	return m.IsUserAuthorized(ctx, req.UserID, ids, p, r, req.ResourceID)
}
