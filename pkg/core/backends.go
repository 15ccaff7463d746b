//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/groups"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/store/postgres"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NewAuthorizationManagerFromConfig creates an [AuthorizationManager] whose
// store and group resolver follow the configuration:
//
//	store.backend: postgres   # connects to store.postgres.dsn and migrates the schema
//	groups.backend: redis     # resolves memberships from groups.redis.addr
//
// Explicit managerOptions take precedence over the configured backends.
func NewAuthorizationManagerFromConfig(ctx context.Context, managerOptions ...options.ManagerOptionsFunc) (AuthorizationManager, error) {
	if err := config.Load(); err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	s := config.Current()
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var (
		closers []func()
		backend []options.ManagerOptionsFunc
	)
	fail := func(err error) (AuthorizationManager, error) {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	if s.StoreBackend == "postgres" {
		pg, err := postgres.New(ctx, s.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return fail(err)
		}
		backend = append(backend, options.WithStore(pg))
		logger.SysInfo("using postgres authorization store")
	}

	if s.GroupsBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(errors.Wrap(err, "redis: ping"))
		}
		backend = append(backend, options.WithGroupResolver(groups.NewDeduped(groups.NewRedis(client, s.RedisPrefix))))
		logger.SysInfof("resolving groups from redis at %s", s.RedisAddr)
	}

	m, err := newManager(closers, append(backend, managerOptions...)...)
	if err != nil {
		return nil, err
	}
	return m, nil
}
