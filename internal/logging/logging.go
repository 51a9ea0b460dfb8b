// Package logging provides structured logging shared by every component of
// the coordination kernel.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels with names that read naturally in config files.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config controls global logger construction.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

var logger zerolog.Logger

func init() {
	Init(Config{Level: LevelInfo, Output: os.Stderr})
}

// Init (re)configures the global logger. Safe to call more than once, e.g.
// from tests that want quiet output.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger = zerolog.New(out).With().Timestamp().Logger().Level(cfg.Level.zerolog())
}

// WithTeam returns a child logger scoped to a team id.
func WithTeam(teamID string) zerolog.Logger {
	return logger.With().Str("team", teamID).Logger()
}

// WithMember returns a child logger scoped to a team/member pair.
func WithMember(teamID, name string) zerolog.Logger {
	return logger.With().Str("team", teamID).Str("member", name).Logger()
}

// WithTask returns a child logger scoped to a team/task pair.
func WithTask(teamID, taskID string) zerolog.Logger {
	return logger.With().Str("team", teamID).Str("task", taskID).Logger()
}

func Debug() *zerolog.Event { return logger.Debug() }
func Info() *zerolog.Event  { return logger.Info() }
func Warn() *zerolog.Event  { return logger.Warn() }
func Error() *zerolog.Event { return logger.Error() }

// L exposes the raw global logger for callers that need more control.
func L() *zerolog.Logger { return &logger }
