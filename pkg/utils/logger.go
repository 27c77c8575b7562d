// pkg/utils/logger.go
package utils

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures the structured logger.
type Config struct {
	LogLevel  string
	LogFormat string // "text" or "json"
	Pretty    bool
}

// Logger wraps logrus.Logger with the field helpers used throughout the
// service layer.
type Logger struct {
	*logrus.Logger
}

// NewLogger builds a Logger from Config, defaulting to info/text on a bad
// or missing level/format.
func NewLogger(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: !cfg.Pretty,
		})
	}

	return &Logger{Logger: l}
}

// WithField mirrors logrus.Entry.WithField but returns *logrus.Entry so
// call sites can keep chaining.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields mirrors logrus.Entry.WithFields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError mirrors logrus.Entry.WithError.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFunc stamps the name of the calling function so log lines can be
// traced back to their origin without a stack trace.
func (l *Logger) WithFunc() *logrus.Entry {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return l.Logger.WithField("func", "unknown")
	}
	name := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return l.Logger.WithField("func", name)
}
