//
//  Copyright © Manetu Inc. All rights reserved.
//

package groups

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis keeps memberships in redis sets named <prefix>:user:<id>:groups.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Resolver = (*Redis)(nil)

// NewRedis builds a resolver on client.  An empty prefix selects "mae".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "mae"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(userID string) string {
	return r.prefix + ":user:" + userID + ":groups"
}

func (r *Redis) Groups(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: smembers")
	}
	return types.NormalizeIDs(ids), nil
}

// AddMember adds userID to groupID.
func (r *Redis) AddMember(ctx context.Context, userID, groupID string) error {
	return errors.Wrap(r.client.SAdd(ctx, r.key(userID), groupID).Err(), "redis: sadd")
}

// RemoveMember removes userID from groupID.
func (r *Redis) RemoveMember(ctx context.Context, userID, groupID string) error {
	return errors.Wrap(r.client.SRem(ctx, r.key(userID), groupID).Err(), "redis: srem")
}
