//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/manetu/authzengine/internal/core"
	"github.com/manetu/authzengine/internal/core/accesslog"
	pub "github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/manetu/authzengine/pkg/core/config"
	"github.com/manetu/authzengine/pkg/core/options"
)

// TestConfigFilename is the name of the test configuration file (without extension).
const TestConfigFilename = "mae-config"

// GetTestdataPath returns the absolute path to the testdata directory of
// pkg/core/config.  It is located relative to this source file so that tests
// work regardless of their working directory.
func GetTestdataPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "testdata"
	}
	// thisFile is internal/core/test/instance.go
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(thisFile))))
	return filepath.Join(projectRoot, "pkg", "core", "config", "testdata")
}

// SetupTestConfig points MAE_CONFIG_PATH and MAE_CONFIG_FILENAME at the test
// configuration regardless of the user's environment.
func SetupTestConfig() error {
	if err := os.Setenv(config.ConfigPathEnv, GetTestdataPath()); err != nil {
		return err
	}
	return os.Setenv(config.ConfigFileNameEnv, TestConfigFilename)
}

// Settings returns the default settings with metrics disabled.
func Settings() config.Settings {
	return config.Settings{
		AuthorizationEnabled:  true,
		CheckRevokes:          "AUTO",
		DefaultTaskPermission: "UPDATE",
		AdminGroups:           []string{"operaton-admin"},
		StoreBackend:          "memory",
		GroupsBackend:         "static",
		BatchBackend:          "memory",
	}
}

// NewTestManager instantiates a manager suitable for unit-testing, pinned to
// s and logging access records to a channel of the given depth.
func NewTestManager(s config.Settings, depth int, opts ...options.ManagerOptionsFunc) (*core.Manager, chan *pub.Record, error) {
	ch := make(chan *pub.Record, depth)
	o := &options.ManagerOptions{
		AccessLogFactory: accesslog.NewChannelLogger(ch),
		Settings:         &s,
	}
	for _, f := range opts {
		f(o)
	}

	m, err := core.NewManager(o)
	if err != nil {
		return nil, nil, err
	}
	return m, ch, nil
}
