//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
)

/* A decision walks the record scopes from the most to the least specific and
 * stops at the first one holding a decisive record:
 *
 *   user/exact, user/any, group/exact, group/any, global/exact, global/any
 *
 * Within a scope a revoke that clears the requested bits denies; otherwise the
 * union of the grant bits of that scope allows when it covers the request.  A
 * scope with neither is skipped.  When no scope decides the check is denied.
 */

// Scope names as recorded in the access log.
const (
	ScopeUser      = "user"
	ScopeUserAny   = "user-any"
	ScopeGroup     = "group"
	ScopeGroupAny  = "group-any"
	ScopeGlobal    = "global"
	ScopeGlobalAny = "global-any"
	ScopeDatabase  = "database"
)

type principalKind int

const (
	byUser principalKind = iota
	byGroup
	byGlobal
)

type scope struct {
	name      string
	principal principalKind
	anyID     bool
}

var scopes = []scope{
	{ScopeUser, byUser, false},
	{ScopeUserAny, byUser, true},
	{ScopeGroup, byGroup, false},
	{ScopeGroupAny, byGroup, true},
	{ScopeGlobal, byGlobal, false},
	{ScopeGlobalAny, byGlobal, true},
}

func (s scope) holds(d check.Descriptor, groups map[string]struct{}, a *model.Authorization) bool {
	if a.ResourceType != d.Resource().ID {
		return false
	}
	if s.anyID {
		if a.ResourceID != model.Any {
			return false
		}
	} else if a.ResourceID != d.ResourceID() {
		return false
	}

	switch s.principal {
	case byUser:
		return a.Type != model.Global && a.GroupID == "" && (a.UserID == d.UserID() || a.UserID == model.Any)
	case byGroup:
		if a.Type == model.Global || a.GroupID == "" {
			return false
		}
		_, ok := groups[a.GroupID]
		return ok
	default:
		return a.Type == model.Global
	}
}

// resolve evaluates d against the candidate records.  It returns the decision
// and the name of the deciding scope, or "" when no scope was decisive.
func resolve(d check.Descriptor, records []*model.Authorization, includeRevokes bool) (bool, string) {
	bits := d.Permission().Value
	groups := make(map[string]struct{})
	for _, g := range d.GroupIDs() {
		groups[g] = struct{}{}
	}

	for _, s := range scopes {
		// the exact scopes coincide with the any scopes for a wildcard check
		if !s.anyID && d.IsAnyCheck() {
			continue
		}

		var (
			granted int32
			grants  int
		)
		for _, a := range records {
			if !s.holds(d, groups, a) {
				continue
			}
			switch a.Type {
			case model.Revoke:
				if includeRevokes && a.Permissions&bits != bits {
					return false, s.name
				}
			default:
				granted |= a.Permissions
				grants++
			}
		}
		if grants > 0 && granted&bits == bits {
			return true, s.name
		}
	}

	return false, ""
}
