// Package logger provides structured logging for docsync
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with docsync-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "docsync").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// IndexLogger returns a logger for master-index operations
func (l *Logger) IndexLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "index").
			Str("operation", operation).
			Logger(),
	}
}

// CoordinatorLogger returns a logger scoped to one collection's coordination
func (l *Logger) CoordinatorLogger(collection string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "coordinator").
			Str("collection", collection).
			Logger(),
	}
}

// StoreLogger returns a logger for collection store operations
func (l *Logger) StoreLogger(collection string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "store").
			Str("collection", collection).
			Logger(),
	}
}

// LogCoordinatedOp logs a coordinated operation with structured fields
func (l *Logger) LogCoordinatedOp(collection, operation string, duration time.Duration, conflicts int, err error) {
	event := l.zlog.Debug().
		Str("component", "coordinator").
		Str("collection", collection).
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("conflicts", conflicts)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "coordinator").
			Str("collection", collection).
			Str("operation", operation).
			Dur("duration_ms", duration).
			Int("conflicts", conflicts).
			Err(err)
	}

	event.Msg("Coordinated operation completed")
}

// LogLockSweep logs the outcome of an expired-lock sweep
func (l *Logger) LogLockSweep(evicted int, duration time.Duration) {
	if evicted == 0 {
		return
	}
	l.zlog.Info().
		Str("component", "index").
		Str("event", "lock_sweep").
		Int("evicted", evicted).
		Dur("duration_ms", duration).
		Msg("Expired locks evicted")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
