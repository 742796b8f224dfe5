package log

import (
	"fmt"

	kitlevel "github.com/go-kit/log/level"
)

// Level is the minimum severity a filtered logger lets through.
type Level byte

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
	LevelNone
)

// ParseLevel turns "debug", "info", "error" or "none" into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	case "none":
		return LevelNone, nil
	default:
		return LevelNone, fmt.Errorf("expected either \"debug\", \"info\", \"error\" or \"none\" level, given %s", s)
	}
}

func (lvl Level) option() kitlevel.Option {
	switch lvl {
	case LevelDebug:
		return kitlevel.AllowDebug()
	case LevelInfo:
		return kitlevel.AllowInfo()
	case LevelError:
		return kitlevel.AllowError()
	default:
		return kitlevel.AllowNone()
	}
}

// NewFilter drops every message of next below the allowed level. Only
// loggers built by NewLogger or NewJSONLogger carry levels; any other
// Logger is returned as is.
func NewFilter(next Logger, allowed Level) Logger {
	l, ok := next.(*kitLogger)
	if !ok {
		return next
	}
	return &kitLogger{kitlevel.NewFilter(l.srcLogger, allowed.option())}
}
