// Package logging backs modular.Logger with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config controls the zerolog output.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// Logger implements modular.Logger on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger. Console format is used when requested, JSON otherwise.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(cfg.Format) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return &Logger{zl: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// NewDefault returns a console logger at debug level when debug is set,
// and a JSON logger at info level otherwise.
func NewDefault(debug bool) *Logger {
	if debug {
		return New(Config{Level: "debug", Format: FormatConsole})
	}
	return New(Config{Level: "info", Format: FormatJSON})
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(pairs(args)).Logger()}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(l.zl.Error(), msg, args) }

func (l *Logger) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	e.Fields(pairs(args)).Msg(msg)
}

// pairs turns modular's alternating key/value args into a field map.
// Non-string keys are formatted; a trailing key without value is kept
// under "!BADKEY".
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}
