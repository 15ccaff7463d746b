//
//  Copyright © Manetu Inc. All rights reserved.
//

package envoy

import (
	"context"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/opa"
	"github.com/manetu/authzengine/pkg/core/types"
)

// DefaultMapperPackage is the Rego package of a mapper unless told otherwise.
const DefaultMapperPackage = "mapper"

// Mapper evaluates data.<package>.request against the ext_authz attributes.
// The result must be an object shaped like a check request:
//
//	package mapper
//
//	methods := {"GET": "READ", "PUT": "UPDATE", "DELETE": "DELETE"}
//	parts := split(trim_prefix(input.request.http.path, "/"), "/")
//
//	request := {
//		"userId": input.request.http.headers["x-user"],
//		"permission": methods[input.request.http.method],
//		"resource": "Task",
//		"resourceId": parts[1],
//	} if parts[0] == "tasks"
//
// An undefined request is rejected.
type Mapper struct {
	ast   *opa.Ast
	query string
}

// NewMapper compiles modules and queries data.<pkg>.request.
func NewMapper(pkg string, modules opa.Modules, opts ...opa.CompilerOptionFunc) (*Mapper, error) {
	a, err := opa.NewCompiler(opts...).Compile(pkg, modules)
	if err != nil {
		return nil, err
	}
	return &Mapper{ast: a, query: "data." + pkg + ".request"}, nil
}

// Map turns input into a check request.
func (m *Mapper) Map(ctx context.Context, input map[string]interface{}) (*types.CheckRequest, error) {
	req := &types.CheckRequest{}
	if err := m.ast.EvaluateInto(ctx, m.query, input, req); err != nil {
		return nil, err
	}
	switch {
	case req.UserID == "":
		return nil, common.NewErrorf(common.KindBadRequest, "%s: the request has no userId", m.ast.Name())
	case req.Resource == "" || req.Permission == "":
		return nil, common.NewErrorf(common.KindBadRequest, "%s: the request needs a resource and a permission", m.ast.Name())
	}
	return req, nil
}
