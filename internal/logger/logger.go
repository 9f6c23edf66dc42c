// Package logger provides structured logging for entitycore
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with entitycore-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // trace, debug, info, warn, error
	Pretty bool   // console output for terminals
	Output io.Writer
}

// NewLogger creates a new structured logger. Unknown levels fall back to info.
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	return &Logger{zlog: zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "entitycore").
		Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func (l *Logger) Info(msg string) *zerolog.Event  { return l.zlog.Info().Str("msg", msg) }
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }
func (l *Logger) Warn(msg string) *zerolog.Event  { return l.zlog.Warn().Str("msg", msg) }
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }

func (l *Logger) component(name, key, val string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Str(key, val).Logger()}
}

// ConnectorLogger returns a logger for one storage provider
func (l *Logger) ConnectorLogger(provider string) *Logger {
	return l.component("connector", "provider", provider)
}

// ObjectLogger returns a logger for entities of one model
func (l *Logger) ObjectLogger(model string) *Logger {
	return l.component("object", "model", model)
}

// outcome picks the event level: failures are always errors
func (l *Logger) outcome(ok zerolog.Level, err error) *zerolog.Event {
	if err != nil {
		return l.zlog.Error().Err(err)
	}
	return l.zlog.WithLevel(ok)
}

// LogGrpcRequest logs a completed RPC
func (l *Logger) LogGrpcRequest(method string, duration time.Duration, err error) {
	l.outcome(zerolog.InfoLevel, err).
		Str("component", "grpc").
		Str("method", method).
		Dur("duration_ms", duration).
		Msg("rpc completed")
}

// LogConnectorOperation logs a save, delete or lookup against a backend
func (l *Logger) LogConnectorOperation(operation, model string, duration time.Duration, err error) {
	l.outcome(zerolog.DebugLevel, err).
		Str("operation", operation).
		Str("model", model).
		Dur("duration_ms", duration).
		Msg("connector operation completed")
}

// LogPipelineRejection logs a field value rejected by a pipeline
func (l *Logger) LogPipelineRejection(model, field, reason string) {
	l.zlog.Debug().
		Str("event", "pipeline_rejection").
		Str("model", model).
		Str("field", field).
		Str("reason", reason).
		Msg("pipeline rejected value")
}

func (l *Logger) LogServerStart(port int, provider string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("port", port).
		Str("provider", provider).
		Msg("entitycore server starting")
}

func (l *Logger) LogServerReady(port int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Int("port", port).
		Msg("entitycore server accepting connections")
}

func (l *Logger) LogServerShutdown() {
	l.zlog.Info().Str("event", "server_shutdown").Msg("entitycore server shutting down")
}
