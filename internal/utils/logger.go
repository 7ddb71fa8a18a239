package utils

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var loggerState struct {
	sync.RWMutex
	logger zerolog.Logger
}

func init() {
	loggerState.logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// InitLogger configures the global logger. When file is non-empty, output is
// duplicated to a size-rotated log file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var w io.Writer = os.Stderr
	if file != "" {
		w = zerolog.MultiLevelWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		})
	}

	loggerState.Lock()
	loggerState.logger = zerolog.New(w).With().Timestamp().Logger()
	loggerState.Unlock()

	SetLogLevel(level)
}

// SetLogLevel adjusts the global minimum level. Unknown values fall back to info.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func currentLogger() zerolog.Logger {
	loggerState.RLock()
	defer loggerState.RUnlock()
	return loggerState.logger
}

// emit attaches alternating key/value pairs to the event. A trailing key
// without a value is ignored.
func emit(e *zerolog.Event, msg string, kv ...interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func Debug(msg string, kv ...interface{}) {
	l := currentLogger()
	emit(l.Debug(), msg, kv...)
}

func Info(msg string, kv ...interface{}) {
	l := currentLogger()
	emit(l.Info(), msg, kv...)
}

func Warn(msg string, kv ...interface{}) {
	l := currentLogger()
	emit(l.Warn(), msg, kv...)
}

func Error(msg string, kv ...interface{}) {
	l := currentLogger()
	emit(l.Error(), msg, kv...)
}
