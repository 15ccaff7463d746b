//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package model defines the authorization record and its permission-bit
// arithmetic.
//
// A record is one of three [Type]s:
//   - [Global] applies to every principal.  Its user id is always [Any].
//   - [Grant] adds permissions for exactly one user or group.
//   - [Revoke] removes permissions for exactly one user or group.
//
// Grant and global records start with no permission bits set, revoke records
// start with all bits set; [Authorization.AddPermission] and
// [Authorization.RemovePermission] flip bits from there.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/resources"
)

// Any is the wildcard resource id (and user id) matching every instance.
const Any = "*"

// Type is the kind of an authorization record.
type Type int

// Record kinds.  The numeric values are persisted.
const (
	Global Type = 0
	Grant  Type = 1
	Revoke Type = 2
)

func (t Type) String() string {
	switch t {
	case Global:
		return "GLOBAL"
	case Grant:
		return "GRANT"
	case Revoke:
		return "REVOKE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ParseType converts GLOBAL/GRANT/REVOKE to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "GLOBAL":
		return Global, nil
	case "GRANT":
		return Grant, nil
	case "REVOKE":
		return Revoke, nil
	}
	return 0, common.NewErrorf(common.KindInvalidArgument, "unknown authorization type '%s'", s)
}

// Authorization is a persisted grant, revoke or global record.
type Authorization struct {
	ID                    string     `json:"id"`
	Type                  Type       `json:"type"`
	ResourceType          int        `json:"resourceType"`
	ResourceID            string     `json:"resourceId,omitempty"`
	UserID                string     `json:"userId,omitempty"`
	GroupID               string     `json:"groupId,omitempty"`
	Permissions           int32      `json:"permissions"`
	RemovalTime           *time.Time `json:"removalTime,omitempty"`
	RootProcessInstanceID string     `json:"rootProcessInstanceId,omitempty"`

	// touched remembers the named permissions applied since construction so
	// that validation can name the offending one.
	touched []resources.Permission
}

// New builds an unsaved record of type t on resource r with a fresh id.  A
// resourceID of "" leaves the id unset, which is not the same as [Any].
func New(t Type, r resources.Resource, resourceID string) *Authorization {
	a := &Authorization{
		ID:           uuid.NewString(),
		Type:         t,
		ResourceType: r.ID,
		ResourceID:   resourceID,
	}
	if t == Revoke {
		a.Permissions = resources.AllValue
	}
	return a
}

// AddPermission sets the bits of p.
func (a *Authorization) AddPermission(p resources.Permission) {
	a.touched = append(a.touched, p)
	a.Permissions |= p.Value
}

// RemovePermission clears the bits of p.
func (a *Authorization) RemovePermission(p resources.Permission) {
	a.touched = append(a.touched, p)
	a.Permissions &^= p.Value
}

// SetPermissions resets the record to its initial bits and applies ps.  For
// grant and global records ps are added; for revoke records they are removed.
func (a *Authorization) SetPermissions(ps ...resources.Permission) {
	a.touched = nil
	if a.Type == Revoke {
		a.Permissions = resources.AllValue
		for _, p := range ps {
			a.RemovePermission(p)
		}
		return
	}
	a.Permissions = 0
	for _, p := range ps {
		a.AddPermission(p)
	}
}

// IsPermissionGranted reports whether every bit of p is set.  Only valid on
// grant and global records.
func (a *Authorization) IsPermissionGranted(p resources.Permission) (bool, error) {
	if a.Type == Revoke {
		return false, a.wrongMethod("isPermissionGranted")
	}
	return a.Permissions&p.Value == p.Value, nil
}

// IsPermissionRevoked reports whether any bit of p is cleared.  Only valid on
// revoke records.
func (a *Authorization) IsPermissionRevoked(p resources.Permission) (bool, error) {
	if a.Type != Revoke {
		return false, a.wrongMethod("isPermissionRevoked")
	}
	return a.Permissions&p.Value != p.Value, nil
}

func (a *Authorization) wrongMethod(method string) error {
	return common.NewErrorf(common.KindBadRequest,
		"Method '%s' cannot be used for authorization with type '%s'.", method, a.Type)
}

// GetPermissions returns the permissions of reg the record grants (grant and
// global) or revokes (revoke), including NONE and ALL where they apply.
func (a *Authorization) GetPermissions(reg *resources.Registry) []resources.Permission {
	candidates := append([]resources.Permission{
		{Resource: a.ResourceType, Name: resources.NoneName},
		{Resource: a.ResourceType, Name: resources.AllName, Value: resources.AllValue},
	}, reg.Permissions(a.ResourceType)...)

	var result []resources.Permission
	for _, p := range candidates {
		var hit bool
		if a.Type == Revoke {
			hit = a.Permissions&p.Value != p.Value
		} else {
			hit = a.Permissions&p.Value == p.Value
		}
		if hit {
			result = append(result, p)
		}
	}
	return result
}

// Validate enforces the structural invariants of the record against reg.  It
// normalizes the user id of global records to [Any].
func (a *Authorization) Validate(reg *resources.Registry) error {
	if _, ok := reg.ResourceByID(a.ResourceType); !ok {
		return common.NewError(common.KindInvalidArgument, "Authorization 'resourceType' cannot be null.")
	}

	switch a.Type {
	case Global:
		if a.GroupID != "" {
			return common.NewError(common.KindInvalidArgument, "Cannot use 'groupId' for GLOBAL authorization")
		}
		if a.UserID != "" && a.UserID != Any {
			return common.NewErrorf(common.KindInvalidArgument,
				"Illegal value '%s' for userId for GLOBAL authorization. Must be '%s'", a.UserID, Any)
		}
		a.UserID = Any
	case Grant, Revoke:
		if (a.UserID == "") == (a.GroupID == "") {
			return common.NewError(common.KindInvalidArgument, "Authorization must either have a 'userId' or a 'groupId'.")
		}
	default:
		return common.NewErrorf(common.KindInvalidArgument, "unknown authorization type %d", int(a.Type))
	}

	for _, p := range a.touched {
		if !reg.IsValid(a.ResourceType, p) {
			return invalidPermission(a.ResourceType, p.Name)
		}
	}

	// Bits set without a named permission (e.g. loaded from a bundle) must
	// still be declared on the resource type.
	declared := reg.DeclaredBits(a.ResourceType)
	effective := a.Permissions
	if a.Type == Revoke {
		effective = ^a.Permissions & resources.AllValue
	}
	if effective != resources.AllValue && effective&^declared != 0 {
		return invalidPermission(a.ResourceType, fmt.Sprintf("%d", effective&^declared))
	}

	return nil
}

func invalidPermission(resourceType int, name string) error {
	return common.NewErrorf(common.KindInvalidArgument,
		"The resource type with id:'%d' is not valid for '%s' permission.", resourceType, name)
}

// Principal returns the user or group id the record is scoped to.
func (a *Authorization) Principal() (id string, isGroup bool) {
	if a.GroupID != "" {
		return a.GroupID, true
	}
	return a.UserID, false
}

// ScopeKey identifies the uniqueness scope (type, resource, principal) of the record.
func (a *Authorization) ScopeKey() string {
	id, isGroup := a.Principal()
	kind := "u"
	if isGroup {
		kind = "g"
	}
	return fmt.Sprintf("%d|%d|%s|%s:%s", a.Type, a.ResourceType, a.ResourceID, kind, id)
}
