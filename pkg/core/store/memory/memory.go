//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package memory is a process-local [store.Store].
package memory

import (
	"context"
	"sync"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/mohae/deepcopy"
)

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*model.Authorization
	scopes  map[string]string // scope key -> id
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]*model.Authorization),
		scopes:  make(map[string]string),
	}
}

func clone(a *model.Authorization) *model.Authorization {
	return deepcopy.Copy(a).(*model.Authorization)
}

func (s *Store) Insert(_ context.Context, a *model.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[a.ID]; ok {
		return common.NewErrorf(common.KindDuplicate, "authorization with id '%s' already exists", a.ID)
	}
	key := a.ScopeKey()
	if _, ok := s.scopes[key]; ok {
		return duplicateScope(a)
	}
	s.records[a.ID] = clone(a)
	s.scopes[key] = a.ID
	return nil
}

func (s *Store) Update(_ context.Context, a *model.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[a.ID]
	if !ok {
		return notFound(a.ID)
	}
	key := a.ScopeKey()
	if owner, ok := s.scopes[key]; ok && owner != a.ID {
		return duplicateScope(a)
	}
	delete(s.scopes, prev.ScopeKey())
	s.records[a.ID] = clone(a)
	s.scopes[key] = a.ID
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*model.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(a), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	s.remove(a)
	return nil
}

// remove must be called with mu held for writing.
func (s *Store) remove(a *model.Authorization) {
	delete(s.scopes, a.ScopeKey())
	delete(s.records, a.ID)
}

func (s *Store) DeleteWhere(_ context.Context, f store.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, a := range s.records {
		if f.Matches(a) {
			s.remove(a)
			n++
		}
	}
	return n, nil
}

func (s *Store) Find(_ context.Context, f store.Filter) ([]*model.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Authorization, 0)
	for _, a := range s.records {
		if f.Matches(a) {
			result = append(result, clone(a))
		}
	}
	store.SortRecords(result, f.Orders)
	return result, nil
}

func (s *Store) Count(_ context.Context, f store.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, a := range s.records {
		if f.Matches(a) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Candidates(_ context.Context, m store.Match) ([]*model.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Authorization
	for _, a := range s.records {
		if m.Accepts(a) {
			result = append(result, clone(a))
		}
	}
	return result, nil
}

func (s *Store) HasRevokes(_ context.Context, resourceType int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.records {
		if a.Type == model.Revoke && a.ResourceType == resourceType {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func notFound(id string) error {
	return common.NewErrorf(common.KindNotFound, "authorization '%s' not found", id)
}

func duplicateScope(a *model.Authorization) error {
	id, isGroup := a.Principal()
	kind := "user"
	if isGroup {
		kind = "group"
	}
	return common.NewErrorf(common.KindDuplicate,
		"a %s authorization for %s '%s' on resource type %d and resource id '%s' already exists",
		a.Type, kind, id, a.ResourceType, a.ResourceID)
}
