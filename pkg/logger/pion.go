package logger

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/pion/logging"
)

// LoggerFactory routes pion's leveled loggers into a logr.Logger. pion info
// logs are debug logs here, warnings are info.
type LoggerFactory struct {
	Logger logr.Logger
}

// NewLogger implements logging.LoggerFactory.
func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{l: f.Logger.WithName(scope)}
}

type pionLogger struct {
	l logr.Logger
}

func (p pionLogger) Trace(msg string)                          { p.l.V(traceVerbosity).Info(msg) }
func (p pionLogger) Tracef(format string, args ...interface{}) { p.Trace(fmt.Sprintf(format, args...)) }
func (p pionLogger) Debug(msg string)                          { p.l.V(traceVerbosity).Info(msg) }
func (p pionLogger) Debugf(format string, args ...interface{}) { p.Debug(fmt.Sprintf(format, args...)) }
func (p pionLogger) Info(msg string)                           { p.l.V(debugVerbosity).Info(msg) }
func (p pionLogger) Infof(format string, args ...interface{})  { p.Info(fmt.Sprintf(format, args...)) }
func (p pionLogger) Warn(msg string)                           { p.l.Info(msg) }
func (p pionLogger) Warnf(format string, args ...interface{})  { p.Warn(fmt.Sprintf(format, args...)) }
func (p pionLogger) Error(msg string)                          { p.l.Error(nil, msg) }
func (p pionLogger) Errorf(format string, args ...interface{}) { p.Error(fmt.Sprintf(format, args...)) }
