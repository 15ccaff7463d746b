//
//  Copyright © Manetu Inc. All rights reserved.
//

package store

import (
	"context"
	"sort"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
)

// OrderField is a sortable record attribute.
type OrderField int

// Sortable attributes.
const (
	OrderByResourceType OrderField = iota + 1
	OrderByResourceID
)

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Asc Direction = iota + 1
	Desc
)

// Order is one sort key.
type Order struct {
	Field     OrderField
	Direction Direction
}

// Filter selects records.  Zero-valued fields do not constrain the result.
type Filter struct {
	IDs          []string
	UserIDs      []string
	GroupIDs     []string
	ResourceType *int
	ResourceID   *string
	Type         *model.Type
	// Permissions must all be set on a matching record.
	Permissions []int32
	Orders      []Order
}

// Matches evaluates f against a in memory.
func (f Filter) Matches(a *model.Authorization) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, a.ID) {
		return false
	}
	if len(f.UserIDs) > 0 && (a.GroupID != "" || !containsString(f.UserIDs, a.UserID)) {
		return false
	}
	if len(f.GroupIDs) > 0 && !containsString(f.GroupIDs, a.GroupID) {
		return false
	}
	if f.ResourceType != nil && a.ResourceType != *f.ResourceType {
		return false
	}
	if f.ResourceID != nil && a.ResourceID != *f.ResourceID {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	for _, p := range f.Permissions {
		if a.Permissions&p != p {
			return false
		}
	}
	return true
}

// SortRecords orders list in place by orders, falling back to id so that the
// result is deterministic.
func SortRecords(list []*model.Authorization, orders []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		for _, o := range orders {
			var cmp int
			switch o.Field {
			case OrderByResourceType:
				cmp = a.ResourceType - b.ResourceType
			case OrderByResourceID:
				cmp = compareStrings(a.ResourceID, b.ResourceID)
			}
			if o.Direction == Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return a.ID < b.ID
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Query is a fluent builder over [Filter].  Misuse is recorded and reported by
// the terminal operations.
type Query struct {
	store   Store
	filter  Filter
	pending OrderField
	err     error
}

// NewQuery starts a query against s.
func NewQuery(s Store) *Query {
	return &Query{store: s}
}

func (q *Query) fail(msg string) *Query {
	if q.err == nil {
		q.err = common.NewError(common.KindBadRequest, msg)
	}
	return q
}

// IDIn restricts the result to the given record ids.
func (q *Query) IDIn(ids ...string) *Query {
	q.filter.IDs = append(q.filter.IDs, ids...)
	return q
}

// UserIDIn restricts the result to user-scoped records of the given users.
func (q *Query) UserIDIn(ids ...string) *Query {
	if len(q.filter.GroupIDs) > 0 {
		return q.fail("Cannot query for user and group authorizations at the same time.")
	}
	q.filter.UserIDs = append(q.filter.UserIDs, ids...)
	return q
}

// GroupIDIn restricts the result to group-scoped records of the given groups.
func (q *Query) GroupIDIn(ids ...string) *Query {
	if len(q.filter.UserIDs) > 0 {
		return q.fail("Cannot query for user and group authorizations at the same time.")
	}
	q.filter.GroupIDs = append(q.filter.GroupIDs, ids...)
	return q
}

// ResourceType restricts the result to records on r.
func (q *Query) ResourceType(r resources.Resource) *Query {
	id := r.ID
	q.filter.ResourceType = &id
	return q
}

// ResourceID restricts the result to records on resource id.
func (q *Query) ResourceID(id string) *Query {
	q.filter.ResourceID = &id
	return q
}

// AuthorizationType restricts the result to records of type t.
func (q *Query) AuthorizationType(t model.Type) *Query {
	q.filter.Type = &t
	return q
}

// HasPermission requires every bit of p.  Calls accumulate.
func (q *Query) HasPermission(p resources.Permission) *Query {
	q.filter.Permissions = append(q.filter.Permissions, p.Value)
	return q
}

// OrderByResourceType sorts by resource type; follow with Asc or Desc.
func (q *Query) OrderByResourceType() *Query { return q.orderBy(OrderByResourceType) }

// OrderByResourceID sorts by resource id; follow with Asc or Desc.
func (q *Query) OrderByResourceID() *Query { return q.orderBy(OrderByResourceID) }

func (q *Query) orderBy(f OrderField) *Query {
	if q.pending != 0 {
		return q.fail("Invalid query: call asc() or desc() after using orderByXX()")
	}
	q.pending = f
	return q
}

// Asc sets the direction of the last ordering to ascending.
func (q *Query) Asc() *Query { return q.direction(Asc) }

// Desc sets the direction of the last ordering to descending.
func (q *Query) Desc() *Query { return q.direction(Desc) }

func (q *Query) direction(d Direction) *Query {
	if q.pending == 0 {
		return q.fail("Invalid query: You should call any of the orderBy methods first before specifying a direction")
	}
	q.filter.Orders = append(q.filter.Orders, Order{Field: q.pending, Direction: d})
	q.pending = 0
	return q
}

// Filter returns the filter built so far, or the first misuse error.
func (q *Query) Filter() (Filter, error) {
	if q.err != nil {
		return Filter{}, q.err
	}
	if q.pending != 0 {
		return Filter{}, common.NewError(common.KindBadRequest, "Invalid query: call asc() or desc() after using orderByXX()")
	}
	return q.filter, nil
}

// List executes the query.
func (q *Query) List(ctx context.Context) ([]*model.Authorization, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, err
	}
	return q.store.Find(ctx, f)
}

// Count executes the query returning only the number of matches.
func (q *Query) Count(ctx context.Context) (int, error) {
	f, err := q.Filter()
	if err != nil {
		return 0, err
	}
	return q.store.Count(ctx, f)
}

// SingleResult returns the only match, nil when there is none, or an error
// when more than one record matches.
func (q *Query) SingleResult(ctx context.Context) (*model.Authorization, error) {
	list, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, common.NewErrorf(common.KindBadRequest, "Query return %d results instead of max 1", len(list))
}
