//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogManager keeps track of all instantiated loggers so that level changes
// reach loggers created before the configuration was loaded.
type LogManager struct {
	loggers  map[string]*Logger
	explicit map[string]bool
	defLevel zapcore.Level
}

var (
	manager *LogManager
	mu      sync.RWMutex
	once    sync.Once
)

func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	manager = nil
	once = sync.Once{}
}

func initManager() {
	manager = &LogManager{
		loggers:  make(map[string]*Logger),
		explicit: make(map[string]bool),
		defLevel: zapcore.InfoLevel,
	}
}

// GetLogger returns the logger registered for module, creating it at the
// current default level.
func GetLogger(module string) *Logger {
	once.Do(initManager)

	mu.RLock()
	l, ok := manager.loggers[module]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok = manager.loggers[module]; ok {
		return l
	}

	l = newLogger(module)
	l.SetLevel(manager.defLevel)
	manager.loggers[module] = l
	return l
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// UpdateLogLevels applies a level specification of the form
// "mod1:debug;mod2:error;.:info", where "." names the default level.
// Whitespace is ignored.
func UpdateLogLevels(spec string) error {
	once.Do(initManager)

	spec = strings.Join(strings.Fields(spec), "")

	mu.Lock()
	defer mu.Unlock()

	var (
		def    zapcore.Level
		hasDef bool
	)
	for _, entry := range strings.Split(spec, ";") {
		mod, lvl, found := strings.Cut(entry, ":")
		if !found || mod == "" {
			continue
		}

		level := parseLevel(lvl)
		if mod == "." {
			def, hasDef = level, true
			continue
		}

		l, ok := manager.loggers[mod]
		if !ok {
			l = newLogger(mod)
			manager.loggers[mod] = l
		}
		manager.explicit[mod] = true
		l.SetLevel(level)
	}

	if hasDef {
		manager.defLevel = def
		for mod, l := range manager.loggers {
			if !manager.explicit[mod] {
				l.SetLevel(def)
			}
		}
	}

	return nil
}
