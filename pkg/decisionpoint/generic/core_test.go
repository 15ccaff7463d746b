//
//  Copyright © Manetu Inc. All rights reserved.
//

package generic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/manetu/authzengine/internal/core/test"
	"github.com/manetu/authzengine/pkg/bundle"
	"github.com/manetu/authzengine/pkg/core"
	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/decisionpoint/generic/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) core.AuthorizationManager {
	t.Helper()
	m, err := core.NewAuthorizationManager(
		options.WithSettings(test.Settings()),
		options.WithAccessLog(accesslog.NewNullFactory()),
	)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	a := m.Authorizations().CreateAuthorization(model.Grant, resources.Task, "task-1")
	a.ID = "grant-1"
	a.UserID = "demo"
	a.AddPermission(resources.TaskPerms.Read)
	require.NoError(t, m.Authorizations().Save(context.Background(), a))
	return m
}

func do(t *testing.T, e *echo.Echo, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decision(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Allow
}

func TestAuthorize(t *testing.T) {
	e := NewHandler(setupTestManager(t), WithGatherer(prometheus.NewRegistry()))

	req := map[string]any{"userId": "demo", "permission": "READ", "resource": "Task", "resourceId": "task-1"}
	assert.True(t, decision(t, do(t, e, http.MethodPost, "/authorize", req)))

	req["permission"] = "UPDATE"
	assert.False(t, decision(t, do(t, e, http.MethodPost, "/authorize", req)))

	req["permission"] = "READ"
	req["userId"] = "john"
	assert.False(t, decision(t, do(t, e, http.MethodPost, "/authorize", req)))

	// administrators pass every check
	req["groupIds"] = []string{"operaton-admin"}
	assert.True(t, decision(t, do(t, e, http.MethodPost, "/authorize?probe=true", req)))
}

func TestAuthorizeBadRequests(t *testing.T) {
	e := NewHandler(setupTestManager(t), WithGatherer(prometheus.NewRegistry()))

	cases := map[string]struct {
		target string
		body   any
		want   string
	}{
		"malformed":     {"/authorize", "{", "malformed check request"},
		"missing user":  {"/authorize", map[string]any{"permission": "READ", "resource": "Task"}, "'userId'"},
		"bad resource":  {"/authorize", map[string]any{"userId": "demo", "permission": "READ", "resource": "Nope"}, "unknown resource 'Nope'"},
		"bad perm":      {"/authorize", map[string]any{"userId": "demo", "permission": "NOPE", "resource": "Task"}, "not valid for 'NOPE' permission"},
		"bad probe arg": {"/authorize?probe=maybe", map[string]any{"userId": "demo", "permission": "READ", "resource": "Task"}, "invalid probe parameter"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Message, tc.want)
			assert.Equal(t, "BAD_REQUEST", resp.Kind)
		})
	}
}

func TestAuthorizationsCRUD(t *testing.T) {
	e := NewHandler(setupTestManager(t), WithGatherer(prometheus.NewRegistry()))

	rec := do(t, e, http.MethodPost, "/authorizations", bundle.Authorization{
		Type: "GRANT", Resource: "ProcessDefinition", ResourceID: "invoice", GroupID: "accounting",
		Permissions: []string{"READ", "CREATE_INSTANCE"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created bundle.Authorization
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"READ", "CREATE_INSTANCE"}, created.Permissions)

	// the same scope cannot be created twice
	rec = do(t, e, http.MethodPost, "/authorizations", bundle.Authorization{
		Type: "GRANT", Resource: "ProcessDefinition", ResourceID: "invoice", GroupID: "accounting",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodGet, "/authorizations?groupId=accounting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []bundle.Authorization
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = do(t, e, http.MethodGet, "/authorizations?resource=Task&type=grant", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "grant-1", list[0].ID)
	assert.Equal(t, []string{"READ"}, list[0].Permissions)

	rec = do(t, e, http.MethodGet, "/authorizations?resource=Nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodDelete, "/authorizations/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, e, http.MethodDelete, "/authorizations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAuthorizationInvalid(t *testing.T) {
	e := NewHandler(setupTestManager(t), WithGatherer(prometheus.NewRegistry()))

	rec := do(t, e, http.MethodPost, "/authorizations", bundle.Authorization{
		Type: "GRANT", Resource: "Task", UserID: "demo", GroupID: "sales",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization must either have a 'userId' or a 'groupId'.")

	rec = do(t, e, http.MethodPost, "/authorizations", bundle.Authorization{Type: "SOMETIMES", Resource: "Task"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "'type'")
}

func TestMetricsAndSchema(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "mae_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	e := NewHandler(setupTestManager(t), WithGatherer(reg))

	rec := do(t, e, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mae_test_total 1")

	rec = do(t, e, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/authorize")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestCreateServerAndStop(t *testing.T) {
	port := freePort(t)
	server, err := CreateServer(setupTestManager(t), port, WithGatherer(prometheus.NewRegistry()))
	require.NoError(t, err)

	url := fmt.Sprintf("http://127.0.0.1:%d/openapi.yaml", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) // #nosec G107 -- local test server
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx))
}
