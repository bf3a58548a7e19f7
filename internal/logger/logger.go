// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package logger wraps zerolog.Logger with the constructors and
// context-aware helpers used by the sync server and the device agent.
//
// Logger embeds zerolog.Logger so the full zerolog API is available on
// *Logger. Request-scoped loggers travel in the context and are recovered
// with FromContext or FromRequest.
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

func configureGlobals() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return runtime.FuncForPC(pc).Name()
	}
	zerolog.CallerFieldName = "func"
}

func newLogger(w io.Writer, role string) *Logger {
	configureGlobals()
	logger := zerolog.New(w).With().
		Str("role", role).
		Timestamp().
		Caller().
		Logger()

	return &Logger{logger}
}

// NewLogger constructs the server logger for the given role label
// (e.g. "server", "worker"). Entries are JSON on stdout and carry the role,
// a timestamp and the calling function under "func".
func NewLogger(role string) *Logger {
	return newLogger(os.Stdout, role)
}

// NewClientLogger constructs the device agent logger. The agent prints its
// own results on stdout, so logs go to the file at path, or to stderr when
// path is empty or cannot be opened.
func NewClientLogger(role, path string) *Logger {
	var w io.Writer = os.Stderr
	if path != "" {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			w = f
		}
	}
	return newLogger(w, role)
}

// Nop returns a *Logger that discards all output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// SetLevel changes the global level. Unknown names leave it unchanged.
func SetLevel(name string) {
	if level, err := zerolog.ParseLevel(name); err == nil && name != "" {
		zerolog.SetGlobalLevel(level)
	}
}

// GetChildLogger returns a copy of the receiver that can be enriched without
// affecting the parent.
func (l *Logger) GetChildLogger() *Logger {
	return &Logger{l.With().Logger()}
}

// WithDevice returns a child logger tagged with the device and user ids.
func (l *Logger) WithDevice(deviceID string, userID int64) *Logger {
	return &Logger{l.With().Str("device_id", deviceID).Int64("user_id", userID).Logger()}
}

// FromRequest returns the logger attached to the request context.
func FromRequest(r *http.Request) *Logger {
	return FromContext(r.Context())
}

// FromContext returns the logger attached to ctx via zerolog's WithContext.
// It never returns nil.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}
