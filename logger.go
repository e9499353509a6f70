package ecs

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger captures structured log output from the kernel and the systems it
// drives (spec ambient stack: extends the teacher's Logger contract with
// Warn/Debug levels).
type Logger interface {
	With(key string, value any) Logger
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything; the zero-value default.
type noopLogger struct{}

func (noopLogger) With(string, any) Logger    { return noopLogger{} }
func (noopLogger) Debug(string, ...any)       {}
func (noopLogger) Info(string, ...any)        {}
func (noopLogger) Warn(string, ...any)        {}
func (noopLogger) Error(string, ...any)       {}

// NewNoopLogger returns a Logger that discards all output.
func NewNoopLogger() Logger { return noopLogger{} }

// zerologLogger adapts zerolog.Logger to the Logger contract.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps a zerolog.Logger, defaulting to a console writer on
// stderr when none is supplied.
func NewZerologLogger(logger *zerolog.Logger) Logger {
	if logger == nil {
		z := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return zerologLogger{logger: z}
	}
	return zerologLogger{logger: *logger}
}

func (l zerologLogger) With(key string, value any) Logger {
	return zerologLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

func (l zerologLogger) Debug(msg string, args ...any) {
	event(l.logger.Debug(), args).Msg(msg)
}

func (l zerologLogger) Info(msg string, args ...any) {
	event(l.logger.Info(), args).Msg(msg)
}

func (l zerologLogger) Warn(msg string, args ...any) {
	event(l.logger.Warn(), args).Msg(msg)
}

func (l zerologLogger) Error(msg string, args ...any) {
	event(l.logger.Error(), args).Msg(msg)
}

// event attaches key/value pairs from a flat args slice ("key", value, ...)
// onto a zerolog event, skipping an unpaired trailing key.
func event(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}
