// Package sysutil holds process bootstrap helpers shared by the API server
// and msgctl: logger construction and small environment parsing utilities.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	Level   string // debug|info|warn|error|fatal|panic
	Pretty  bool   // human-readable console output
	Service string
	Version string
	Hooks   []zerolog.Hook
}

// NewLogger builds the root logger, sets the global level from opts.Level and
// makes the result the default for zerolog.Ctx on contexts without a logger.
func NewLogger(w io.Writer, opts LogOptions) zerolog.Logger {
	SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	c := zerolog.New(w).With().Timestamp()
	if opts.Service != "" {
		c = c.Str("service", opts.Service)
	}
	if opts.Version != "" {
		c = c.Str("version", opts.Version)
	}
	l := c.Logger()
	for _, h := range opts.Hooks {
		l = l.Hook(h)
	}

	zerolog.DefaultContextLogger = &l
	return l
}

// SetLogLevel configures the global zerolog level. Supported values
// (case-insensitive): debug, info, warn/warning, error, fatal, panic. Anything
// else means info. The applied level is returned.
func SetLogLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// IsTruthy reports whether an environment value should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first value that is not blank, unmodified, or ""
// when all are blank. Flags, then environment, then defaults.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
