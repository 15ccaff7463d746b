//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLogging(t *testing.T) {
	logger := newLogger("testmodule")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)
	logger.SetLevel(zapcore.InfoLevel)

	assert.True(t, logger.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, logger.IsDebugEnabled())

	logger.Debug("tester", "123abc", "debug message")
	logger.Debugf("tester", "123abc", "debug message %s", "hello")
	assert.Empty(t, buffer.Bytes())

	for _, emit := range []func(){
		func() { logger.Info("tester", "123abc", "info message") },
		func() { logger.Infof("tester", "123abc", "info message %s", "hello") },
		func() { logger.Warn("tester", "123abc", "warning message") },
		func() { logger.Warnf("tester", "123abc", "warning message %s", "hello") },
		func() { logger.Error("tester", "123abc", "error message") },
		func() { logger.Errorf("tester", "123abc", "error message %s", "hello") },
	} {
		buffer.Reset()
		emit()
		assert.NotEmpty(t, buffer.Bytes())
	}
}

func TestLoggingFields(t *testing.T) {
	logger := newLogger("fields")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)

	logger.Info("alice", "grant", "hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "alice", entry["actor"])
	assert.Equal(t, "grant", entry["action"])
	assert.Equal(t, "fields", entry["module"])
	assert.Equal(t, "hello", entry["msg"])
}

func TestSysLogging(t *testing.T) {
	logger := newLogger("testsysmodule")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)
	logger.SetLevel(zapcore.ErrorLevel)

	assert.True(t, logger.IsLevelEnabled(zapcore.ErrorLevel))
	assert.False(t, logger.IsLevelEnabled(zapcore.WarnLevel))

	logger.SysDebug("debug message")
	logger.SysDebugf("debug message %s", "hello")
	logger.SysInfo("info message")
	logger.SysInfof("info message %s", "hello")
	logger.SysWarn("warning message")
	logger.SysWarnf("warning message %s", "hello")
	assert.Empty(t, buffer.Bytes())

	logger.SysError("error message")
	assert.NotEmpty(t, buffer.Bytes())
	buffer.Reset()
	logger.SysErrorf("error message %s", "hello")
	assert.NotEmpty(t, buffer.Bytes())
}

func TestPanicLogs(t *testing.T) {
	logger := newLogger("panicky")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)

	assert.Panics(t, func() { logger.Panic("tester", "boom", "panic message") })
	assert.NotEmpty(t, buffer.Bytes())
}
