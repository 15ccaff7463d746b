//
//  Copyright © Manetu Inc. All rights reserved.
//

package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/bundle"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authz.decisionpoint")

const agent = "api"

// DecisionResponse answers POST /authorize.
type DecisionResponse struct {
	Allow bool `json:"allow"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Server implements the generic decision point API.
type Server struct {
	m core.AuthorizationManager
}

// NewServer creates a new API server for m.
func NewServer(m core.AuthorizationManager) Server {
	return Server{m: m}
}

// Register adds the API routes to e.
func (s Server) Register(e *echo.Echo) {
	e.Validator = NewValidator()
	e.POST("/authorize", s.Authorize)
	e.GET("/authorizations", s.ListAuthorizations)
	e.POST("/authorizations", s.CreateAuthorization)
	e.DELETE("/authorizations/:id", s.DeleteAuthorization)
}

// Authorize decides a single check request.  ?probe=true suppresses the
// access log record.
func (s Server) Authorize(c echo.Context) error {
	var probe bool
	if err := echo.QueryParamsBinder(c).Bool("probe", &probe).BindError(); err != nil {
		return fail(c, common.NewError(common.KindBadRequest, "invalid probe parameter"))
	}

	req := &types.CheckRequest{}
	if err := c.Bind(req); err != nil {
		return fail(c, common.NewError(common.KindBadRequest, "malformed check request"))
	}
	if err := c.Validate(req); err != nil {
		return fail(c, err)
	}

	r, p, err := s.m.Registry().Resolve(req.Resource, req.Permission)
	if err != nil {
		return fail(c, err)
	}

	allow, err := s.m.IsUserAuthorized(c.Request().Context(), req.UserID, req.GroupIDs, p, r, req.ResourceID,
		options.SetProbeMode(probe))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, DecisionResponse{Allow: allow})
}

// ListAuthorizations returns the records matching the userId, groupId,
// resource, resourceId and type query parameters.
func (s Server) ListAuthorizations(c echo.Context) error {
	q := s.m.Authorizations().Query()
	if v := c.QueryParam("userId"); v != "" {
		q = q.UserIDIn(strings.Split(v, ",")...)
	}
	if v := c.QueryParam("groupId"); v != "" {
		q = q.GroupIDIn(strings.Split(v, ",")...)
	}
	if v := c.QueryParam("resource"); v != "" {
		r, ok := s.m.Registry().ResourceByName(v)
		if !ok {
			return fail(c, common.NewErrorf(common.KindBadRequest, "unknown resource '%s'", v))
		}
		q = q.ResourceType(r)
	}
	if v := c.QueryParam("resourceId"); v != "" {
		q = q.ResourceID(v)
	}
	if v := c.QueryParam("type"); v != "" {
		t, err := model.ParseType(strings.ToUpper(v))
		if err != nil {
			return fail(c, err)
		}
		q = q.AuthorizationType(t)
	}

	recs, err := q.OrderByResourceType().Asc().OrderByResourceID().Asc().List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}

	out := make([]bundle.Authorization, 0, len(recs))
	for _, rec := range recs {
		out = append(out, bundle.FromRecord(s.m.Registry(), rec))
	}
	return c.JSON(http.StatusOK, out)
}

// CreateAuthorization saves the record in the body, inserting it or
// replacing the record with the same id.
func (s Server) CreateAuthorization(c echo.Context) error {
	var body bundle.Authorization
	if err := c.Bind(&body); err != nil {
		return fail(c, common.NewError(common.KindBadRequest, "malformed authorization"))
	}
	if err := c.Validate(&body); err != nil {
		return fail(c, err)
	}

	rec, err := body.Record(s.m.Registry())
	if err != nil {
		return fail(c, err)
	}
	if err := s.m.Authorizations().Save(c.Request().Context(), rec); err != nil {
		return fail(c, err)
	}

	logger.Debugf(agent, "create", "saved %s authorization %s", rec.Type, rec.ID)
	return c.JSON(http.StatusCreated, bundle.FromRecord(s.m.Registry(), rec))
}

func (s Server) DeleteAuthorization(c echo.Context) error {
	if err := s.m.Authorizations().Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// status maps an error kind to its HTTP status.
func status(err error) int {
	switch common.KindOf(err) {
	case common.KindBadRequest, common.KindInvalidArgument:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindDuplicate:
		return http.StatusConflict
	case common.KindAuthorizationDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	code := status(err)
	if code == http.StatusInternalServerError {
		logger.Errorf(agent, "request", "%s %s: %+v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(code, ErrorResponse{Kind: string(common.KindOf(err)), Message: err.Error()})
}

// Validator adapts validator/v10 to echo, naming fields by their JSON key.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return common.NewErrorf(common.KindBadRequest, "invalid value for '%s': failed '%s' validation",
			verrs[0].Field(), verrs[0].Tag())
	}
	return common.NewError(common.KindBadRequest, err.Error())
}
