package log

import (
	"io"

	kitlog "github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
	"github.com/go-kit/log/term"
)

const (
	msgKey    = "_msg" // "_" prefixed to avoid collisions
	moduleKey = "module"
)

type kitLogger struct {
	srcLogger kitlog.Logger
}

// Interface assertions
var _ Logger = (*kitLogger)(nil)

// NewLogger returns a logger that encodes msg and keyvals to the Writer
// using go-kit's log as an underlying logger and our custom formatter.
// Debug lines are grey and errors red when w is a terminal.
func NewLogger(w io.Writer) Logger {
	colorFn := func(keyvals ...interface{}) term.FgBgColor {
		if len(keyvals) < 2 || keyvals[0] != kitlevel.Key() {
			return term.FgBgColor{}
		}
		lvl, ok := keyvals[1].(interface{ String() string })
		if !ok {
			return term.FgBgColor{}
		}
		switch lvl.String() {
		case "debug":
			return term.FgBgColor{Fg: term.DarkGray}
		case "error":
			return term.FgBgColor{Fg: term.Red}
		default:
			return term.FgBgColor{}
		}
	}

	return &kitLogger{term.NewLogger(w, NewFmtLogger, colorFn)}
}

// NewJSONLogger returns a Logger that encodes keyvals to the Writer as a
// single JSON object per line.
func NewJSONLogger(w io.Writer) Logger {
	return &kitLogger{kitlog.NewJSONLogger(w)}
}

// Info logs a message at level Info.
func (l *kitLogger) Info(msg string, keyvals ...interface{}) {
	l.log(kitlevel.Info(l.srcLogger), msg, keyvals...)
}

// Debug logs a message at level Debug.
func (l *kitLogger) Debug(msg string, keyvals ...interface{}) {
	l.log(kitlevel.Debug(l.srcLogger), msg, keyvals...)
}

// Error logs a message at level Error.
func (l *kitLogger) Error(msg string, keyvals ...interface{}) {
	lWithMsg := kitlog.With(kitlevel.Error(l.srcLogger), msgKey, msg)
	if err := lWithMsg.Log(keyvals...); err != nil {
		lWithMsg.Log("err", err) //nolint:errcheck // no need to check error again
	}
}

func (l *kitLogger) log(lWithLevel kitlog.Logger, msg string, keyvals ...interface{}) {
	if err := kitlog.With(lWithLevel, msgKey, msg).Log(keyvals...); err != nil {
		errLogger := kitlevel.Error(l.srcLogger)
		kitlog.With(errLogger, msgKey, msg).Log("err", err) //nolint:errcheck // no need to check error again
	}
}

// With returns a new contextual logger with keyvals prepended to those passed
// to calls to Info, Debug or Error.
func (l *kitLogger) With(keyvals ...interface{}) Logger {
	return &kitLogger{kitlog.With(l.srcLogger, keyvals...)}
}
