//
//  Copyright © Manetu Inc. All rights reserved.
//

package bundle

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	return v
}

// checkSchema reports every struct tag violation of b.
func checkSchema(b *Bundle, name string, ve *Errors) {
	err := validate.Struct(b)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		ve.Add(&Error{Bundle: name, Type: ErrorSchema, Message: err.Error(), Cause: err})
		return
	}
	for _, fe := range verrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		ve.Add(&Error{Bundle: name, Type: ErrorSchema, Field: field, Message: describe(fe)})
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "oneof":
		return fmt.Sprintf("'%v' is not one of [%s]", fe.Value(), fe.Param())
	case "ne":
		return fmt.Sprintf("'%s' is a reserved identifier", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}

// Validate checks b against the schema and resolves every authorization
// against reg.
func (b *Bundle) Validate(reg *resources.Registry) error {
	ve := &Errors{}
	checkSchema(b, b.Metadata.Name, ve)
	for i, a := range b.Spec.Authorizations {
		if _, err := a.Record(reg); err != nil {
			ve.Add(&Error{
				Bundle:   b.Metadata.Name,
				Type:     ErrorReference,
				Entity:   "authorization",
				EntityID: a.label(i),
				Message:  err.Error(),
				Cause:    err,
			})
		}
	}
	return ve.OrNil()
}

func (a Authorization) label(i int) string {
	if a.ID != "" {
		return a.ID
	}
	return fmt.Sprintf("#%d", i)
}

// Record converts a into an unsaved, validated authorization record.
func (a Authorization) Record(reg *resources.Registry) (*model.Authorization, error) {
	t, err := model.ParseType(a.Type)
	if err != nil {
		return nil, err
	}
	r, ok := reg.ResourceByName(a.Resource)
	if !ok {
		return nil, common.NewErrorf(common.KindInvalidArgument, "unknown resource '%s'", a.Resource)
	}

	resourceID := a.ResourceID
	if resourceID == "" {
		resourceID = model.Any
	}
	rec := model.New(t, r, resourceID)
	if a.ID != "" {
		rec.ID = a.ID
	}
	rec.UserID, rec.GroupID = a.UserID, a.GroupID

	ps := make([]resources.Permission, 0, len(a.Permissions))
	for _, name := range a.Permissions {
		p, ok := reg.Lookup(r.ID, name)
		if !ok {
			return nil, common.NewErrorf(common.KindInvalidArgument,
				"The resource type with id:'%d' is not valid for '%s' permission.", r.ID, name)
		}
		ps = append(ps, p)
	}
	rec.SetPermissions(ps...)

	if err := rec.Validate(reg); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromRecord renders rec in textual form.  Permissions list the named
// permissions rec grants, or revokes for a revoke record, collapsing to ALL
// when every bit is covered.
func FromRecord(reg *resources.Registry, rec *model.Authorization) Authorization {
	a := Authorization{
		ID:          rec.ID,
		Type:        rec.Type.String(),
		Resource:    reg.ResourceName(rec.ResourceType),
		ResourceID:  rec.ResourceID,
		UserID:      rec.UserID,
		GroupID:     rec.GroupID,
		Permissions: []string{},
	}

	bits := rec.Permissions
	if rec.Type == model.Revoke {
		bits = ^bits & resources.AllValue
	}
	if bits == resources.AllValue {
		a.Permissions = append(a.Permissions, resources.AllName)
		return a
	}
	for _, p := range reg.Permissions(rec.ResourceType) {
		if p.Value != 0 && bits&p.Value == p.Value {
			a.Permissions = append(a.Permissions, p.Name)
		}
	}
	return a
}

// scope identifies the uniqueness scope of a, mirroring
// [model.Authorization.ScopeKey].
func (a Authorization) scope() string {
	id := a.ResourceID
	if id == "" {
		id = model.Any
	}
	return strings.Join([]string{a.Type, a.Resource, id, "u:" + a.UserID, "g:" + a.GroupID}, "|")
}
