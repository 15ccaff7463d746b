//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package groups resolves the groups a user belongs to at evaluation time.
//
// Three resolvers are provided: [Static] (in memory, seeded from
// configuration or a bundle), [Redis] (sets in a redis server) and
// [Deduped], which collapses concurrent lookups for the same user against any
// other resolver.
package groups

import (
	"context"
	"sync"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var logger = logging.GetLogger("authz.groups")

const agent = "groups"

// Resolver maps a user to its group ids.
type Resolver interface {
	Groups(ctx context.Context, userID string) ([]string, error)
}

// CurrentAuthentication resolves the groups of userID through r.  The
// administrator group appears like any other membership.
func CurrentAuthentication(ctx context.Context, r Resolver, userID string) (types.Authentication, error) {
	if r == nil {
		return types.NewAuthentication(userID, nil), nil
	}
	ids, err := r.Groups(ctx, userID)
	if err != nil {
		return types.Authentication{}, errors.Wrapf(err, "resolving groups of %s", userID)
	}
	return types.NewAuthentication(userID, ids), nil
}

// Static holds memberships in memory.
type Static struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

var _ Resolver = (*Static)(nil)

// NewStatic builds a resolver from a user → groups map.
func NewStatic(memberships map[string][]string) *Static {
	s := &Static{users: make(map[string]map[string]struct{})}
	for user, ids := range memberships {
		s.Add(user, ids...)
	}
	return s
}

// Add makes userID a member of groupIDs.
func (s *Static) Add(userID string, groupIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.users[userID]
	if !ok {
		set = make(map[string]struct{})
		s.users[userID] = set
	}
	for _, g := range groupIDs {
		set[g] = struct{}{}
	}
}

// AddMember is Add for a single group.  It never fails.
func (s *Static) AddMember(_ context.Context, userID, groupID string) error {
	s.Add(userID, groupID)
	return nil
}

// Remove drops userID from groupID.
func (s *Static) Remove(userID, groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users[userID], groupID)
}

// DeleteGroup drops every membership of groupID.
func (s *Static) DeleteGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.users {
		delete(set, groupID)
	}
}

func (s *Static) Groups(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users[userID]))
	for g := range s.users[userID] {
		ids = append(ids, g)
	}
	return types.NormalizeIDs(ids), nil
}

// Deduped shares one in-flight lookup between concurrent callers asking for
// the same user.
type Deduped struct {
	next  Resolver
	group singleflight.Group
}

var _ Resolver = (*Deduped)(nil)

// NewDeduped wraps next.
func NewDeduped(next Resolver) *Deduped {
	return &Deduped{next: next}
}

func (d *Deduped) Groups(ctx context.Context, userID string) ([]string, error) {
	ch := d.group.DoChan(userID, func() (interface{}, error) {
		return d.next.Groups(ctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Tracef(agent, "groups", "shared lookup for %s", userID)
		}
		// callers must not share the backing array
		return append([]string{}, res.Val.([]string)...), nil
	}
}
