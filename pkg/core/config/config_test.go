//
//  Copyright © Manetu Inc. All rights reserved.
//

package config_test

import (
	"testing"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, "/nonexistent")
	config.ResetConfig()
	require.NotNil(t, config.VConfig)

	s := config.Current()
	assert.True(t, s.AuthorizationEnabled)
	assert.False(t, s.CustomCodeAuthorization)
	assert.Equal(t, "AUTO", s.CheckRevokes)
	assert.Equal(t, "UPDATE", s.DefaultTaskPermission)
	assert.Equal(t, []string{"operaton-admin"}, s.AdminGroups)
	assert.Empty(t, s.DisabledPermissions)
	assert.Equal(t, "memory", s.StoreBackend)
	assert.Equal(t, "static", s.GroupsBackend)
	assert.NoError(t, s.Validate())
}

func TestConfigFile(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, "testdata")
	t.Setenv("MAE_TEST_POD", "pod-1")
	config.ResetConfig()
	defer config.ResetConfig()

	s := config.Current()
	assert.Equal(t, "ALWAYS", s.CheckRevokes)
	assert.Equal(t, "TASK_WORK", s.DefaultTaskPermission)
	assert.Equal(t, []string{"READ_HISTORY_VARIABLE"}, s.DisabledPermissions)
	assert.Equal(t, []string{"admin"}, s.AdminUsers)
	assert.Equal(t, []string{"sales", "accounting"}, s.StaticGroups["demo"])
	assert.Equal(t, map[string]string{"pod": "pod-1"}, config.GetAuditEnv())
	assert.NoError(t, s.Validate())
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, "/nonexistent")
	t.Setenv("MAE_AUTHORIZATION_CHECKREVOKES", "always")
	config.ResetConfig()
	defer config.ResetConfig()

	assert.Equal(t, "ALWAYS", config.Current().CheckRevokes)
}

func TestValidate(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, "/nonexistent")
	config.ResetConfig()
	base := config.Current()

	s := base
	s.DefaultTaskPermission = "DELETE"
	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBadConfiguration)
	assert.Contains(t, err.Error(), "Invalid value 'DELETE' for configuration property 'authorization.defaulttaskpermission'.")

	s = base
	s.CheckRevokes = "SOMETIMES"
	assert.ErrorIs(t, s.Validate(), common.ErrBadConfiguration)

	s = base
	s.StoreBackend = "postgres"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing value for configuration property 'store.postgres.dsn'.")

	s.PostgresDSN = "postgres://localhost/mae"
	assert.NoError(t, s.Validate())

	s = base
	s.DisabledPermissions = []string{"READ", ""}
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'authorization.disabledpermissions'")
}
