//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package store defines persistence for authorization records.
//
// Implementations live in sub-packages:
//   - [memory]: a process-local store, the default
//   - [postgres]: a PostgreSQL store built on pgx
//
// Records are validated by the caller-facing [Service] before they reach an
// implementation, so a [Store] only enforces uniqueness of the record scope.
package store

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/model"
)

// Store is the persistence contract for authorization records.  Returned
// records are copies owned by the caller.
type Store interface {
	// Insert adds a new record, failing with common.ErrDuplicate when a record
	// of the same scope already exists.
	Insert(ctx context.Context, a *model.Authorization) error

	// Update replaces an existing record, failing with common.ErrNotFound when
	// the id is unknown.
	Update(ctx context.Context, a *model.Authorization) error

	// Get returns the record with id, or common.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Authorization, error)

	// Delete removes the record with id, or fails with common.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteWhere removes every record matching f and returns how many were removed.
	DeleteWhere(ctx context.Context, f Filter) (int, error)

	// Find returns the records matching f in the order f requests.
	Find(ctx context.Context, f Filter) ([]*model.Authorization, error)

	// Count returns the number of records matching f.
	Count(ctx context.Context, f Filter) (int, error)

	// Candidates returns the records that can affect a decision described by m.
	Candidates(ctx context.Context, m Match) ([]*model.Authorization, error)

	// HasRevokes reports whether any revoke record exists for resourceType.
	HasRevokes(ctx context.Context, resourceType int) (bool, error)
}

// Match selects the records relevant to one authorization decision.
type Match struct {
	ResourceType int
	// ResourceIDs holds the concrete id (if any) and model.Any.
	ResourceIDs []string
	UserID      string
	GroupIDs    []string
	// IncludeRevokes is false when the revoke-check mode established that
	// revokes cannot affect the result.
	IncludeRevokes bool
}

// Accepts reports whether a belongs to the candidate set described by m.
func (m Match) Accepts(a *model.Authorization) bool {
	if a.ResourceType != m.ResourceType {
		return false
	}
	if !containsString(m.ResourceIDs, a.ResourceID) {
		return false
	}
	if a.Type == model.Revoke && !m.IncludeRevokes {
		return false
	}
	switch {
	case a.Type == model.Global:
		return true
	case a.GroupID != "":
		return containsString(m.GroupIDs, a.GroupID)
	default:
		return a.UserID == m.UserID || a.UserID == model.Any
	}
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// Predicate is a SQL boolean expression with its positional ($n) arguments.
type Predicate struct {
	SQL  string
	Args []any
}
