//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package resources is the catalog of resource types and the permissions each
// of them supports.
//
// A [Permission] is identified by the pair (resource type, name).  Bit values
// are only meaningful within a resource type; two permission sets may reuse
// the same value for unrelated names (TaskPerms.ReadVariable and
// ProcessInstancePerms.Suspend are both 64).
//
// The built-in catalog is registered in [Default].  Applications may add
// custom resource types or extend an existing permission set with [Registry.Register].
package resources

import (
	"math"
	"sort"
	"sync"

	"github.com/manetu/authzengine/pkg/common"
)

// Resource is a resource type known to the engine.
type Resource struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Permission is a named, resource-type scoped capability.
type Permission struct {
	Resource int    `json:"resource" yaml:"resource"`
	Name     string `json:"name" yaml:"name"`
	Value    int32  `json:"value" yaml:"value"`
}

// Reserved permission names present on every resource type.
const (
	NoneName = "NONE"
	AllName  = "ALL"

	// AllValue has every bit set.
	AllValue int32 = math.MaxInt32
)

// None returns the NONE permission of resource r.
func None(r Resource) Permission { return Permission{Resource: r.ID, Name: NoneName} }

// All returns the ALL permission of resource r.
func All(r Resource) Permission { return Permission{Resource: r.ID, Name: AllName, Value: AllValue} }

// Registry maps resource types to their declared permissions.  It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byID    map[int]Resource
	byName  map[string]Resource
	perms   map[int]map[string]Permission
	allBits map[int]int32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[int]Resource),
		byName:  make(map[string]Resource),
		perms:   make(map[int]map[string]Permission),
		allBits: make(map[int]int32),
	}
}

// Register adds r to the registry (if absent) and declares perms on it.  A
// permission whose name already exists on r with a different value is rejected.
func (reg *Registry) Register(r Resource, perms ...Permission) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.byID[r.ID]; ok && existing.Name != r.Name {
		return common.NewErrorf(common.KindBadConfiguration,
			"resource type with id:'%d' is already registered as '%s'", r.ID, existing.Name)
	}
	reg.byID[r.ID] = r
	reg.byName[r.Name] = r

	set, ok := reg.perms[r.ID]
	if !ok {
		set = make(map[string]Permission)
		reg.perms[r.ID] = set
	}
	for _, p := range perms {
		if p.Name == NoneName || p.Name == AllName {
			continue
		}
		if prev, ok := set[p.Name]; ok && prev.Value != p.Value {
			return common.NewErrorf(common.KindBadConfiguration,
				"permission '%s' of resource '%s' is already registered with value %d", p.Name, r.Name, prev.Value)
		}
		p.Resource = r.ID
		set[p.Name] = p
		reg.allBits[r.ID] |= p.Value
	}
	return nil
}

// MustRegister is Register that panics on error.  Used for static catalogs.
func (reg *Registry) MustRegister(r Resource, perms ...Permission) {
	if err := reg.Register(r, perms...); err != nil {
		panic(err)
	}
}

// ResourceByID returns the resource registered under id.
func (reg *Registry) ResourceByID(id int) (Resource, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byID[id]
	return r, ok
}

// ResourceByName returns the resource registered under its display name.
func (reg *Registry) ResourceByName(name string) (Resource, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byName[name]
	return r, ok
}

// Resources returns every registered resource ordered by id.
func (reg *Registry) Resources() []Resource {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	result := make([]Resource, 0, len(reg.byID))
	for _, r := range reg.byID {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Permissions returns the permissions declared on resource id, ordered by value.
// NONE and ALL are not included.
func (reg *Registry) Permissions(id int) []Permission {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	set := reg.perms[id]
	result := make([]Permission, 0, len(set))
	for _, p := range set {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Value < result[j].Value })
	return result
}

// Lookup finds the permission called name on resource id, including NONE and ALL.
func (reg *Registry) Lookup(id int, name string) (Permission, bool) {
	switch name {
	case NoneName:
		return Permission{Resource: id, Name: NoneName}, true
	case AllName:
		return Permission{Resource: id, Name: AllName, Value: AllValue}, true
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.perms[id][name]
	return p, ok
}

// IsValid reports whether p belongs to the permission set of resource id.  NONE
// and ALL are valid for every registered resource.
func (reg *Registry) IsValid(id int, p Permission) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if _, ok := reg.byID[id]; !ok {
		return false
	}
	if p.Name == NoneName || p.Name == AllName {
		return true
	}
	declared, ok := reg.perms[id][p.Name]
	return ok && declared.Value == p.Value
}

// DeclaredBits returns the union of all permission values declared on id.
func (reg *Registry) DeclaredBits(id int) int32 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.allBits[id]
}

// KnownName reports whether any resource declares a permission called name.
func (reg *Registry) KnownName(name string) bool {
	if name == NoneName || name == AllName {
		return true
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, set := range reg.perms {
		if _, ok := set[name]; ok {
			return true
		}
	}
	return false
}

// ResourceName returns the display name of id, or "" if unknown.
func (reg *Registry) ResourceName(id int) string {
	r, _ := reg.ResourceByID(id)
	return r.Name
}

// Resolve finds the resource and permission called resource and permission.
func (reg *Registry) Resolve(resource, permission string) (Resource, Permission, error) {
	r, ok := reg.ResourceByName(resource)
	if !ok {
		return r, Permission{}, common.NewErrorf(common.KindBadRequest, "unknown resource '%s'", resource)
	}
	p, ok := reg.Lookup(r.ID, permission)
	if !ok {
		return r, p, common.NewErrorf(common.KindBadRequest,
			"The resource type with id:'%d' is not valid for '%s' permission.", r.ID, permission)
	}
	return r, p, nil
}
