//
//  Copyright © Manetu Inc. All rights reserved.
//

package postgres

import (
	"strconv"
	"strings"

	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/store"
)

const (
	table   = "act_ru_authorization"
	columns = "id_, type_, resource_type_, resource_id_, user_id_, group_id_, perms_, removal_time_, root_proc_inst_id_"
)

const schema = `
CREATE TABLE IF NOT EXISTS act_ru_authorization (
    id_                varchar(64) PRIMARY KEY,
    rev_               integer      NOT NULL DEFAULT 1,
    type_              integer      NOT NULL,
    resource_type_     integer      NOT NULL,
    resource_id_       varchar(255) NOT NULL DEFAULT '',
    user_id_           varchar(255) NOT NULL DEFAULT '',
    group_id_          varchar(255) NOT NULL DEFAULT '',
    perms_             integer      NOT NULL,
    removal_time_      timestamptz,
    root_proc_inst_id_ varchar(64)  NOT NULL DEFAULT '',
    CONSTRAINT act_uniq_auth_scope UNIQUE (type_, resource_type_, resource_id_, user_id_, group_id_)
);
CREATE INDEX IF NOT EXISTS act_idx_auth_resource ON act_ru_authorization (resource_type_, resource_id_);
`

// builder accumulates SQL text and positional arguments.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func joinAnd(terms []string) string {
	if len(terms) == 0 {
		return "TRUE"
	}
	return strings.Join(terms, " AND ")
}

// compileFilter renders f as a WHERE expression over alias a.
func compileFilter(b *builder, f store.Filter) string {
	var terms []string
	if len(f.IDs) > 0 {
		terms = append(terms, "a.id_ = ANY("+b.arg(f.IDs)+")")
	}
	if len(f.UserIDs) > 0 {
		terms = append(terms, "a.group_id_ = '' AND a.user_id_ = ANY("+b.arg(f.UserIDs)+")")
	}
	if len(f.GroupIDs) > 0 {
		terms = append(terms, "a.group_id_ = ANY("+b.arg(f.GroupIDs)+")")
	}
	if f.ResourceType != nil {
		terms = append(terms, "a.resource_type_ = "+b.arg(*f.ResourceType))
	}
	if f.ResourceID != nil {
		terms = append(terms, "a.resource_id_ = "+b.arg(*f.ResourceID))
	}
	if f.Type != nil {
		terms = append(terms, "a.type_ = "+b.arg(int(*f.Type)))
	}
	for _, p := range f.Permissions {
		v := b.arg(p)
		terms = append(terms, "(a.perms_ & "+v+") = "+v)
	}
	return joinAnd(terms)
}

func orderClause(orders []store.Order) string {
	var keys []string
	for _, o := range orders {
		var col string
		switch o.Field {
		case store.OrderByResourceType:
			col = "a.resource_type_"
		case store.OrderByResourceID:
			col = "a.resource_id_"
		default:
			continue
		}
		if o.Direction == store.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		keys = append(keys, col)
	}
	keys = append(keys, "a.id_ ASC")
	return " ORDER BY " + strings.Join(keys, ", ")
}

// compileMatch renders the candidate selection m over alias a.
func compileMatch(b *builder, m store.Match) string {
	terms := []string{
		"a.resource_type_ = " + b.arg(m.ResourceType),
		"a.resource_id_ = ANY(" + b.arg(m.ResourceIDs) + ")",
	}
	if !m.IncludeRevokes {
		terms = append(terms, "a.type_ <> "+strconv.Itoa(int(model.Revoke)))
	}

	user := b.arg(m.UserID)
	principal := "a.type_ = " + strconv.Itoa(int(model.Global)) +
		" OR (a.group_id_ = '' AND a.user_id_ IN (" + user + ", '*'))"
	if len(m.GroupIDs) > 0 {
		principal += " OR a.group_id_ = ANY(" + b.arg(m.GroupIDs) + ")"
	}
	terms = append(terms, "("+principal+")")
	return joinAnd(terms)
}

type scope struct {
	principal string
	resource  string
	global    bool
}

// CompileCheck renders the decision for d as a boolean SQL expression.  When
// resourceIDExpr is empty the descriptor's resource id is bound as an
// argument; otherwise resourceIDExpr (typically a column of an outer query) is
// checked.  Scopes are tested from most to least specific and the first one
// holding a decisive record determines the result.
func CompileCheck(d check.Descriptor, includeRevokes bool, resourceIDExpr string) store.Predicate {
	b := &builder{}
	return store.Predicate{SQL: compileCheck(b, d, includeRevokes, resourceIDExpr), Args: b.args}
}

func compileCheck(b *builder, d check.Descriptor, includeRevokes bool, resourceIDExpr string) string {
	perm := b.arg(d.Permission().Value)
	resourceType := b.arg(d.Resource().ID)

	anyOnly := false
	exact := resourceIDExpr
	if exact == "" {
		if d.IsAnyCheck() {
			anyOnly = true
		} else {
			exact = b.arg(d.ResourceID())
		}
	}
	resourceIDs := []string{"'*'"}
	if !anyOnly {
		resourceIDs = []string{exact, "'*'"}
	}

	user := "a.group_id_ = '' AND a.user_id_ IN (" + b.arg(d.UserID()) + ", '*')"
	var scopes []scope
	for _, id := range resourceIDs {
		scopes = append(scopes, scope{principal: user, resource: id})
	}
	if groups := d.GroupIDs(); len(groups) > 0 {
		group := "a.group_id_ = ANY(" + b.arg(groups) + ")"
		for _, id := range resourceIDs {
			scopes = append(scopes, scope{principal: group, resource: id})
		}
	}
	for _, id := range resourceIDs {
		scopes = append(scopes, scope{resource: id, global: true})
	}

	var sb strings.Builder
	sb.WriteString("CASE")
	for _, s := range scopes {
		where := "a.resource_type_ = " + resourceType + " AND a.resource_id_ = " + s.resource
		if s.global {
			sb.WriteString(" WHEN (SELECT bit_or(a.perms_) FROM " + table + " a WHERE a.type_ = 0 AND " +
				where + ") & " + perm + " = " + perm + " THEN TRUE")
			continue
		}
		where += " AND " + s.principal
		if includeRevokes {
			sb.WriteString(" WHEN EXISTS (SELECT 1 FROM " + table + " a WHERE a.type_ = 2 AND " + where +
				" AND (a.perms_ & " + perm + ") <> " + perm + ") THEN FALSE")
		}
		sb.WriteString(" WHEN (SELECT bit_or(a.perms_) FROM " + table + " a WHERE a.type_ = 1 AND " +
			where + ") & " + perm + " = " + perm + " THEN TRUE")
	}
	sb.WriteString(" ELSE FALSE END")
	return sb.String()
}
