// Package debug provides opt-in debug logging for recordkit using log/slog.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Init configures debug logging. When enable is true, debug logs are written
// to os.Stderr; otherwise they are silently discarded.
func Init(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = enable
	if enable {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Enabled reports whether debug logging is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Logf logs a debug message with key/value attributes.
func Logf(msg string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Debug(msg, args...)
}

// SQL logs a statement about to be executed together with its bind values.
func SQL(query string, args []interface{}) {
	mu.RLock()
	l := logger
	on := enabled
	mu.RUnlock()
	if !on {
		return
	}
	l.Debug("sql", slog.String("query", query), slog.Any("args", args))
}
