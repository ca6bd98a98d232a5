/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/pluto/utils"
)

// LoggerName is the utils logger backing GetLogger.
const LoggerName = "PLUTO"

// Logger is the key/value logger shared by the database, store and unit of
// work layers: logger.Info("committed", "rows", 3).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// With returns a logger that adds kv to every record.
	With(kv ...any) Logger
}

var global atomic.Pointer[Logger]

// InitLogger replaces the global logger. A nil log restores the default.
func InitLogger(log Logger) {
	if log == nil {
		global.Store(nil)
		return
	}
	global.Store(&log)
}

// GetLogger returns the global logger, a logrus logger named LoggerName
// unless InitLogger installed another.
func GetLogger() Logger {
	if l := global.Load(); l != nil {
		return *l
	}
	def := Logger(NewLogrusLogger(LoggerName))
	if global.CompareAndSwap(nil, &def) {
		return def
	}
	return *global.Load()
}

// NewLogrusLogger adapts the named utils logger to Logger.
func NewLogrusLogger(name string) Logger {
	return &logrusLogger{entry: logrus.NewEntry(utils.GetLogger(name))}
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(msg string, kv ...any) { l.with(kv).Debug(msg) }
func (l *logrusLogger) Info(msg string, kv ...any)  { l.with(kv).Info(msg) }
func (l *logrusLogger) Warn(msg string, kv ...any)  { l.with(kv).Warn(msg) }
func (l *logrusLogger) Error(msg string, kv ...any) { l.with(kv).Error(msg) }

func (l *logrusLogger) With(kv ...any) Logger {
	return &logrusLogger{entry: l.with(kv)}
}

// with turns alternating key/value pairs into logrus fields. A dangling key
// is logged under "extra".
func (l *logrusLogger) with(kv []any) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fields["extra"] = kv[i]
			break
		}
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}
