//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	resetForTesting()

	l := GetLogger("testmodule")
	assert.NotNil(t, l)
	assert.True(t, l.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, l.IsLevelEnabled(zapcore.DebugLevel))
	assert.Same(t, l, GetLogger("testmodule"))
}

func TestUpdateLogLevels(t *testing.T) {
	resetForTesting()

	assert.NoError(t, UpdateLogLevels(".:info;module1:debug;module2:warn"))

	assert.True(t, GetLogger("module1").IsLevelEnabled(zapcore.DebugLevel))

	l2 := GetLogger("module2")
	assert.True(t, l2.IsLevelEnabled(zapcore.WarnLevel))
	assert.False(t, l2.IsLevelEnabled(zapcore.InfoLevel))

	l3 := GetLogger("undeclared")
	assert.False(t, l3.IsLevelEnabled(zapcore.DebugLevel))

	assert.NoError(t, UpdateLogLevels(".:debug"))
	assert.True(t, GetLogger("undeclared2").IsLevelEnabled(zapcore.DebugLevel))
	assert.True(t, l3.IsLevelEnabled(zapcore.DebugLevel))

	// explicit levels survive a later default change
	assert.False(t, l2.IsLevelEnabled(zapcore.InfoLevel))
}

func TestUpdateLogLevelsWhitespace(t *testing.T) {
	resetForTesting()

	assert.NoError(t, UpdateLogLevels("  mod1: debug  ;  mod2: error  ;  .: info  "))

	assert.True(t, GetLogger("mod1").IsLevelEnabled(zapcore.DebugLevel))
	l2 := GetLogger("mod2")
	assert.True(t, l2.IsLevelEnabled(zapcore.ErrorLevel))
	assert.False(t, l2.IsLevelEnabled(zapcore.WarnLevel))
}

func TestTraceLevelMapsToDebug(t *testing.T) {
	resetForTesting()

	assert.NoError(t, UpdateLogLevels(".:trace"))
	assert.True(t, GetLogger("testmodule").IsTraceEnabled())
}

func TestConcurrentGetLogger(t *testing.T) {
	resetForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			l := GetLogger(fmt.Sprintf("module%d", k))
			l.SysDebug("this is a test")
		}(i % 5)
	}
	wg.Wait()
}
