package logging

import (
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Level is an enum of log levels. Its value can be `DEBUG`, `INFO`, `WARN` or `ERROR`.
type Level int

const (
	// DEBUG log level.
	DEBUG Level = iota - 1
	// INFO log level.
	INFO
	// WARN log level.
	WARN
	// ERROR log level.
	ERROR
)

// GlobalLogLevel set to DEBUG makes every logger emit debug entries regardless of its own
// level. The balance command sets it from its --debug flag.
var GlobalLogLevel = NewAtomicLevelAt(INFO)

var levelNames = map[Level]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (level Level) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "unknown"
}

// LevelFromString parses `debug`, `info`, `warn` (or `warning`) and `error`, ignoring case.
func LevelFromString(inp string) (Level, error) {
	inp = strings.ToLower(inp)
	if inp == "warning" {
		return WARN, nil
	}
	for level, name := range levelNames {
		if name == inp {
			return level, nil
		}
	}
	return INFO, errors.Errorf("unknown log level %q, expected debug, info, warn or error", inp)
}

// zapLevel maps the level onto zapcore, whose numbering matches.
func (level Level) zapLevel() zapcore.Level {
	return zapcore.Level(level)
}

// AtomicLevel is a level that can be concurrently accessed.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt creates a new AtomicLevel at the input `initLevel`.
func NewAtomicLevelAt(initLevel Level) AtomicLevel {
	ret := AtomicLevel{
		val: new(atomic.Int32),
	}
	ret.Set(initLevel)
	return ret
}

// Set changes the level.
func (level AtomicLevel) Set(newLevel Level) {
	level.val.Store(int32(newLevel))
}

// Get returns the level.
func (level AtomicLevel) Get() Level {
	return Level(level.val.Load())
}
