// Copyright 2019 Jorn Friedrich Dreyer
// Modified 2021 Serhii Mikhno
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger implements github.com/go-logr/logr on top of zerolog
// (github.com/rs/zerolog).
package logger

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/rs/zerolog"
)

const (
	debugVerbosity = 1
	traceVerbosity = 2
	timeFormat     = "2006-01-02 15:04:05.000"
)

var globalV int32

// GlobalConfig is the logging section of the configuration file.
type GlobalConfig struct {
	V int `mapstructure:"v"`
}

// SetGlobalOptions sets the highest verbosity that is still written.
func SetGlobalOptions(c GlobalConfig) {
	atomic.StoreInt32(&globalV, int32(c.V))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// Options that can be passed to NewWithOptions
type Options struct {
	// Name is an optional name of the logger
	Name string
	// Output defaults to a console writer on stdout
	Output io.Writer
}

// New returns a logr.Logger writing to stdout.
func New() logr.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions returns a logr.Logger which is implemented by zerolog.
func NewWithOptions(opts Options) logr.Logger {
	out := opts.Output
	if out == nil {
		out = consoleWriter(os.Stdout)
	}
	zerolog.TimeFieldFormat = timeFormat
	l := zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return logger{
		l:      &l,
		prefix: opts.Name,
	}
}

// logger is a logr.Logger that uses zerolog to log.
type logger struct {
	l         *zerolog.Logger
	verbosity int
	prefix    string
	values    []interface{}
}

func (l logger) Enabled() bool {
	return l.verbosity <= int(atomic.LoadInt32(&globalV))
}

func (l logger) Info(msg string, keysAndVals ...interface{}) {
	if !l.Enabled() {
		return
	}
	var e *zerolog.Event
	switch {
	case l.verbosity < debugVerbosity:
		e = l.l.Info()
	case l.verbosity < traceVerbosity:
		e = l.l.Debug()
	default:
		e = l.l.Trace()
	}
	l.write(e, msg, keysAndVals)
}

func (l logger) Error(err error, msg string, keysAndVals ...interface{}) {
	l.write(l.l.Error().Err(err), msg, keysAndVals)
}

func (l logger) write(e *zerolog.Event, msg string, keysAndVals []interface{}) {
	if l.prefix != "" {
		e.Str("name", l.prefix)
	}
	add(e, l.values)
	add(e, keysAndVals)
	e.Msg(msg)
}

func (l logger) V(level int) logr.Logger {
	n := l.clone()
	n.verbosity += level
	return n
}

// WithName returns a new logr.Logger with the specified name appended. zerologr
// uses '/' characters to separate name elements.
func (l logger) WithName(name string) logr.Logger {
	n := l.clone()
	if len(l.prefix) > 0 {
		n.prefix = l.prefix + "/"
	}
	n.prefix += name
	return n
}

func (l logger) WithValues(kvList ...interface{}) logr.Logger {
	n := l.clone()
	n.values = append(n.values, kvList...)
	return n
}

func (l logger) clone() logger {
	out := l
	out.values = make([]interface{}, len(l.values))
	copy(out.values, l.values)
	return out
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, NoColor: false, TimeFormat: timeFormat}
}

// add converts a bunch of arbitrary key-value pairs into zerolog fields.
func add(e *zerolog.Event, keysAndVals []interface{}) {
	// make sure we got an even number of arguments
	if len(keysAndVals)%2 != 0 {
		e.Interface("args", keysAndVals).
			AnErr("zerologr-err", errors.New("odd number of arguments passed as key-value pairs for logging"))
		return
	}

	for i := 0; i < len(keysAndVals); i += 2 {
		key, val := keysAndVals[i], keysAndVals[i+1]
		keyStr, isString := key.(string)
		if !isString {
			e.Interface("invalid key", key).
				AnErr("zerologr-err", errors.New("non-string key argument passed to logging, ignoring all later arguments"))
			return
		}
		e.Interface(keyStr, val)
	}
}
