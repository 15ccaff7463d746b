//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package check describes authorization checks.
//
// A [Permission] names one way of satisfying a check: a permission on a
// resource type, optionally narrowed to a resource id.  A [Composite] is a
// disjunction of such alternatives; it is satisfied when any one of them is.
// A [Descriptor] binds one alternative to a principal and the engine's revoke
// mode, and is what the decision algorithm and the SQL compiler consume.
package check

import (
	"strings"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/types"
)

// RevokeMode selects when revoke records are consulted.
type RevokeMode int

// Revoke modes.  Both produce the same decisions.
const (
	// Auto only consults revokes when one exists for the resource type.
	Auto RevokeMode = iota
	// Always consults revokes unconditionally.
	Always
)

func (m RevokeMode) String() string {
	if m == Always {
		return "ALWAYS"
	}
	return "AUTO"
}

// ParseRevokeMode accepts AUTO or ALWAYS in any case.
func ParseRevokeMode(s string) (RevokeMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return Auto, nil
	case "ALWAYS":
		return Always, nil
	}
	return Auto, common.NewErrorf(common.KindBadConfiguration,
		"Invalid value '%s' for configuration property 'authorizationCheckRevokes'.", s)
}

// Permission is one alternative of a check.
type Permission struct {
	Permission resources.Permission
	Resource   resources.Resource
	// ResourceID is the instance to check; "" or model.Any checks the
	// wildcard records only.
	ResourceID string
}

// On is shorthand for building a Permission.
func On(p resources.Permission, r resources.Resource, resourceID string) Permission {
	return Permission{Permission: p, Resource: r, ResourceID: resourceID}
}

// Missing converts the alternative into the form reported by a denial.
func (p Permission) Missing() common.MissingAuthorization {
	return common.MissingAuthorization{
		Permission: p.Permission.Name,
		Resource:   p.Resource.Name,
		ResourceID: p.ResourceID,
	}
}

// Composite is satisfied when any of its alternatives is.
type Composite struct {
	Checks []Permission
}

// AnyOf builds a Composite from alternatives.
func AnyOf(checks ...Permission) Composite {
	return Composite{Checks: checks}
}

// Or returns a copy of c extended with more alternatives.
func (c Composite) Or(checks ...Permission) Composite {
	out := make([]Permission, 0, len(c.Checks)+len(checks))
	out = append(out, c.Checks...)
	return Composite{Checks: append(out, checks...)}
}

// Missing lists every alternative of c in denial form.
func (c Composite) Missing() []common.MissingAuthorization {
	out := make([]common.MissingAuthorization, 0, len(c.Checks))
	for _, p := range c.Checks {
		out = append(out, p.Missing())
	}
	return out
}

// Descriptor is an immutable, fully bound check.  The zero value is not useful;
// build one with [NewDescriptor].
type Descriptor struct {
	permission resources.Permission
	resource   resources.Resource
	resourceID string
	userID     string
	groupIDs   []string
	mode       RevokeMode
	enabled    bool
}

// NewDescriptor binds p to auth.  Group ids are copied and normalized.
func NewDescriptor(auth types.Authentication, p Permission, mode RevokeMode, enabled bool) Descriptor {
	id := p.ResourceID
	if id == "" {
		id = model.Any
	}
	return Descriptor{
		permission: p.Permission,
		resource:   p.Resource,
		resourceID: id,
		userID:     auth.UserID,
		groupIDs:   types.NormalizeIDs(auth.GroupIDs),
		mode:       mode,
		enabled:    enabled,
	}
}

func (d Descriptor) Permission() resources.Permission { return d.permission }
func (d Descriptor) Resource() resources.Resource     { return d.resource }
func (d Descriptor) ResourceID() string               { return d.resourceID }
func (d Descriptor) UserID() string                   { return d.userID }
func (d Descriptor) RevokeMode() RevokeMode           { return d.mode }
func (d Descriptor) Enabled() bool                    { return d.enabled }

// GroupIDs returns a copy of the normalized group ids.
func (d Descriptor) GroupIDs() []string {
	return append([]string{}, d.groupIDs...)
}

// IsAnyCheck reports whether the check targets the wildcard id.
func (d Descriptor) IsAnyCheck() bool { return d.resourceID == model.Any }

// ResourceIDs returns the record resource ids relevant to the check.
func (d Descriptor) ResourceIDs() []string {
	if d.IsAnyCheck() {
		return []string{model.Any}
	}
	return []string{d.resourceID, model.Any}
}

// Match returns the store selection for the check's candidate records.
func (d Descriptor) Match(includeRevokes bool) store.Match {
	return store.Match{
		ResourceType:   d.resource.ID,
		ResourceIDs:    d.ResourceIDs(),
		UserID:         d.userID,
		GroupIDs:       d.GroupIDs(),
		IncludeRevokes: includeRevokes,
	}
}

// WithResourceID returns a copy of d targeting another instance.
func (d Descriptor) WithResourceID(id string) Descriptor {
	if id == "" {
		id = model.Any
	}
	d.resourceID = id
	d.groupIDs = d.GroupIDs()
	return d
}
