//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the authorization
// engine using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the MAE_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the engine looks for mae-config.yaml in the current directory.
// Override the location using environment variables:
//
//	MAE_CONFIG_PATH=/etc/authzengine
//	MAE_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	authorization:
//	  enabled: true
//	  checkrevokes: AUTO
//	  disabledpermissions: [ "READ_HISTORY_VARIABLE" ]
//	admin:
//	  groups: [ "operaton-admin" ]
//	store:
//	  backend: postgres
//	  postgres:
//	    dsn: postgres://mae@localhost/mae
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the MAE_
// prefix. Dots in key names become underscores:
//
//	MAE_LOG_LEVEL=.:debug
//	MAE_AUTHORIZATION_CHECKREVOKES=ALWAYS
//	MAE_STORE_BACKEND=postgres
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all engine environment variables.
	// For example, the key "log.level" becomes MAE_LOG_LEVEL.
	EnvVarPrefix string = "MAE"

	// ConfigPathEnv names the directory containing the configuration file.
	ConfigPathEnv string = "MAE_CONFIG_PATH"

	// ConfigFileNameEnv names the configuration file (without extension).
	ConfigFileNameEnv string = "MAE_CONFIG_FILENAME"

	ConfigDefaultPath     string = "."
	ConfigDefaultFilename string = "mae-config"
)

// Configuration keys for use with [VConfig].
const (
	logLevel string = "log.level"

	// AuthorizationEnabled is the global switch.  When false every check
	// passes and query filters are not applied.
	AuthorizationEnabled string = "authorization.enabled"

	// CustomCodeAuthorization controls whether user supplied code run through
	// the manager is checked.  When false it runs with authorization disabled.
	CustomCodeAuthorization string = "authorization.customcode"

	// CheckRevokes is AUTO or ALWAYS.
	CheckRevokes string = "authorization.checkrevokes"

	// DisabledPermissions lists permission names that may no longer be
	// checked.  It is re-read on every check.
	DisabledPermissions string = "authorization.disabledpermissions"

	// EnforceSpecificVariablePermission requires the *_VARIABLE permissions
	// for variable visibility.
	EnforceSpecificVariablePermission string = "authorization.enforcespecificvariablepermission"

	// DefaultTaskPermission is UPDATE or TASK_WORK and is granted to task
	// assignees, owners and candidates by the default provider.
	DefaultTaskPermission string = "authorization.defaulttaskpermission"

	AdminUsers  string = "admin.users"
	AdminGroups string = "admin.groups"

	// StoreBackend is memory or postgres.
	StoreBackend string = "store.backend"
	PostgresDSN  string = "store.postgres.dsn"

	// GroupsBackend is static or redis.
	GroupsBackend string = "groups.backend"
	// StaticGroups maps user ids to group ids for the static resolver.
	StaticGroups string = "groups.static"
	RedisAddr    string = "groups.redis.addr"
	RedisPrefix  string = "groups.redis.prefix"

	// BatchBackend is memory or asynq.
	BatchBackend string = "batch.backend"
	AsynqAddr    string = "batch.asynq.addr"
	AsynqQueue   string = "batch.asynq.queue"

	// AuditEnv maps access log metadata keys to environment variable names.
	//
	//	audit:
	//	  env:
	//	    pod: HOSTNAME
	AuditEnv string = "audit.env"

	MetricsEnabled string = "metrics.enabled"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance.  It is initialized
	// by [Init] or [Load]; most applications only read it through [Current].
	VConfig *viper.Viper
	logger  = logging.GetLogger("authz.config")

	validate = newValidator()
)

// Init sets up Viper paths, environment handling and defaults without
// reading any file.  Subsequent calls are no-ops.
func Init() {
	once.Do(func() {
		doInitialize()
	})
}

func getConfigPath() string {
	configPath, ok := os.LookupEnv(ConfigPathEnv)
	if ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	configName, ok := os.LookupEnv(ConfigFileNameEnv)
	if ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// './mae-config.yaml' unless overridden with $(MAE_CONFIG_PATH)/$(MAE_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(AuthorizationEnabled, true)
	VConfig.SetDefault(CustomCodeAuthorization, false)
	VConfig.SetDefault(CheckRevokes, "AUTO")
	VConfig.SetDefault(DisabledPermissions, []string{})
	VConfig.SetDefault(EnforceSpecificVariablePermission, false)
	VConfig.SetDefault(DefaultTaskPermission, "UPDATE")
	VConfig.SetDefault(AdminUsers, []string{})
	VConfig.SetDefault(AdminGroups, []string{"operaton-admin"})
	VConfig.SetDefault(StoreBackend, "memory")
	VConfig.SetDefault(GroupsBackend, "static")
	VConfig.SetDefault(RedisPrefix, "mae")
	VConfig.SetDefault(BatchBackend, "memory")
	VConfig.SetDefault(AsynqQueue, "batches")
	VConfig.SetDefault(MetricsEnabled, true)
}

// Load initializes configuration and reads the configuration file if one is
// present.  Only the first call has an effect; later calls return its result.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// honour the log level early so that loading itself can be debugged
		earlyLoglevel := os.Getenv("MAE_LOG_LEVEL")
		if earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		err := VConfig.ReadInConfig()
		if err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig discards all loaded configuration and reloads it.  Intended for
// tests only.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}

// GetAuditEnv resolves the audit.env mapping against the environment.  Unset
// variables resolve to "".
func GetAuditEnv() map[string]string {
	result := make(map[string]string)

	envConfig := VConfig.GetStringMapString(AuditEnv)
	if envConfig == nil {
		return result
	}

	for key, envVarName := range envConfig {
		result[key] = os.Getenv(envVarName)
	}

	return result
}

// Settings is a typed snapshot of the configuration.
type Settings struct {
	AuthorizationEnabled              bool                `key:"authorization.enabled"`
	CustomCodeAuthorization           bool                `key:"authorization.customcode"`
	CheckRevokes                      string              `key:"authorization.checkrevokes" validate:"oneof=AUTO ALWAYS"`
	DisabledPermissions               []string            `key:"authorization.disabledpermissions" validate:"dive,required"`
	EnforceSpecificVariablePermission bool                `key:"authorization.enforcespecificvariablepermission"`
	DefaultTaskPermission             string              `key:"authorization.defaulttaskpermission" validate:"oneof=UPDATE TASK_WORK"`
	AdminUsers                        []string            `key:"admin.users"`
	AdminGroups                       []string            `key:"admin.groups"`
	StoreBackend                      string              `key:"store.backend" validate:"oneof=memory postgres"`
	PostgresDSN                       string              `key:"store.postgres.dsn" validate:"required_if=StoreBackend postgres"`
	GroupsBackend                     string              `key:"groups.backend" validate:"oneof=static redis"`
	StaticGroups                      map[string][]string `key:"groups.static"`
	RedisAddr                         string              `key:"groups.redis.addr" validate:"required_if=GroupsBackend redis"`
	RedisPrefix                       string              `key:"groups.redis.prefix"`
	BatchBackend                      string              `key:"batch.backend" validate:"oneof=memory asynq"`
	AsynqAddr                         string              `key:"batch.asynq.addr" validate:"required_if=BatchBackend asynq"`
	AsynqQueue                        string              `key:"batch.asynq.queue"`
	MetricsEnabled                    bool                `key:"metrics.enabled"`
}

// Current returns the settings held by [VConfig], initializing it if needed.
func Current() Settings {
	Init()
	v := VConfig
	return Settings{
		AuthorizationEnabled:              v.GetBool(AuthorizationEnabled),
		CustomCodeAuthorization:           v.GetBool(CustomCodeAuthorization),
		CheckRevokes:                      strings.ToUpper(v.GetString(CheckRevokes)),
		DisabledPermissions:               v.GetStringSlice(DisabledPermissions),
		EnforceSpecificVariablePermission: v.GetBool(EnforceSpecificVariablePermission),
		DefaultTaskPermission:             strings.ToUpper(v.GetString(DefaultTaskPermission)),
		AdminUsers:                        v.GetStringSlice(AdminUsers),
		AdminGroups:                       v.GetStringSlice(AdminGroups),
		StoreBackend:                      v.GetString(StoreBackend),
		PostgresDSN:                       v.GetString(PostgresDSN),
		GroupsBackend:                     v.GetString(GroupsBackend),
		StaticGroups:                      v.GetStringMapStringSlice(StaticGroups),
		RedisAddr:                         v.GetString(RedisAddr),
		RedisPrefix:                       v.GetString(RedisPrefix),
		BatchBackend:                      v.GetString(BatchBackend),
		AsynqAddr:                         v.GetString(AsynqAddr),
		AsynqQueue:                        v.GetString(AsynqQueue),
		MetricsEnabled:                    v.GetBool(MetricsEnabled),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("key")
	})
	return v
}

// Validate checks s, reporting the first offending key as a BadConfiguration
// error.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.NewError(common.KindBadConfiguration, err.Error())
	}

	fe := verrs[0]
	if fe.Tag() == "required_if" {
		return common.NewErrorf(common.KindBadConfiguration,
			"Missing value for configuration property '%s'.", fe.Field())
	}
	return common.NewErrorf(common.KindBadConfiguration,
		"Invalid value '%v' for configuration property '%s'.", fe.Value(), fieldKey(fe))
}

// fieldKey strips any element index from the key reported for fe.
func fieldKey(fe validator.FieldError) string {
	key, _, _ := strings.Cut(fe.Field(), "[")
	return key
}

// String renders the settings for diagnostics.
func (s Settings) String() string {
	return fmt.Sprintf("authorization=%t revokes=%s store=%s groups=%s batch=%s",
		s.AuthorizationEnabled, s.CheckRevokes, s.StoreBackend, s.GroupsBackend, s.BatchBackend)
}
