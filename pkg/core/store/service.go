//
//  Copyright © Manetu Inc. All rights reserved.
//

package store

import (
	"context"
	"sync"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authz.store")

const agent = "store"

// AllResourceTypes is passed to write listeners when a change may touch
// records of any resource type.
const AllResourceTypes = -1

// WriteListener is notified after every successful mutation.
type WriteListener func(resourceType int)

// Service is the validating front of a [Store].
type Service struct {
	store Store
	reg   *resources.Registry

	mu        sync.RWMutex
	listeners []WriteListener
}

// NewService wraps s.  A nil reg selects [resources.Default].
func NewService(s Store, reg *resources.Registry) *Service {
	if reg == nil {
		reg = resources.Default
	}
	return &Service{store: s, reg: reg}
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Registry returns the registry used for validation.
func (s *Service) Registry() *resources.Registry { return s.reg }

// OnWrite registers fn to run after every mutation.
func (s *Service) OnWrite(fn WriteListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(resourceType int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(resourceType)
	}
}

// CreateAuthorization builds an unsaved record.  See [model.New].
func (s *Service) CreateAuthorization(t model.Type, r resources.Resource, resourceID string) *model.Authorization {
	return model.New(t, r, resourceID)
}

// Save validates a and inserts it, or updates it when a record with the same
// id already exists.
func (s *Service) Save(ctx context.Context, a *model.Authorization) error {
	if a == nil {
		return common.NewError(common.KindInvalidArgument, "authorization is null")
	}
	if err := a.Validate(s.reg); err != nil {
		return err
	}

	_, err := s.store.Get(ctx, a.ID)
	switch {
	case err == nil:
		err = s.store.Update(ctx, a)
	case errors.Is(err, common.ErrNotFound):
		err = s.store.Insert(ctx, a)
	}
	if err != nil {
		logger.Debugf(agent, "save", "authorization %s rejected: %+v", a.ID, err)
		return err
	}

	logger.Debugf(agent, "save", "%s authorization %s on %s/%s", a.Type, a.ID, s.reg.ResourceName(a.ResourceType), a.ResourceID)
	s.notify(a.ResourceType)
	return nil
}

// Delete removes the record with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return common.NewErrorf(common.KindNotFound, "Authorization for Id '%s' does not exist: authorization is null", id)
	}
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "deleting authorization %s", id)
	}
	s.notify(existing.ResourceType)
	return nil
}

// DeleteByUser removes every record scoped to userID.
func (s *Service) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return s.deleteWhere(ctx, Filter{UserIDs: []string{userID}}, AllResourceTypes)
}

// DeleteByGroup removes every record scoped to groupID.
func (s *Service) DeleteByGroup(ctx context.Context, groupID string) (int, error) {
	return s.deleteWhere(ctx, Filter{GroupIDs: []string{groupID}}, AllResourceTypes)
}

// DeleteByResource removes every record on resource (r, resourceID).
func (s *Service) DeleteByResource(ctx context.Context, r resources.Resource, resourceID string) (int, error) {
	id := r.ID
	return s.deleteWhere(ctx, Filter{ResourceType: &id, ResourceID: &resourceID}, r.ID)
}

func (s *Service) deleteWhere(ctx context.Context, f Filter, resourceType int) (int, error) {
	n, err := s.store.DeleteWhere(ctx, f)
	if err != nil {
		return 0, errors.Wrap(err, "cascading delete")
	}
	if n > 0 {
		logger.Debugf(agent, "cascade", "removed %d authorizations", n)
		s.notify(resourceType)
	}
	return n, nil
}

// Query starts a record query.
func (s *Service) Query() *Query {
	return NewQuery(s.store)
}
