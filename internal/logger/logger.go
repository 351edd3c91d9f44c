// Package logger is a thin structured-logging facade over zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes leveled, structured log events.
type Logger struct {
	zl zerolog.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`
}

// New builds a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}, nil
}

// NewWithWriter logs JSON at debug level to w.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).Level(zerolog.DebugLevel)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that adds fields to every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(event *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.addTo(event)
	}
	event.Msg(msg)
}

// Field is a typed key/value attached to a log event.
type Field struct {
	key   string
	apply func(*zerolog.Event, string)
	ctx   func(zerolog.Context, string) zerolog.Context
}

func (f Field) addTo(e *zerolog.Event) { f.apply(e, f.key) }

func (f Field) addToContext(c zerolog.Context) zerolog.Context { return f.ctx(c, f.key) }

func String(key, value string) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Str(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Str(k, value) },
	}
}

func Int(key string, value int) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Int(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Int(k, value) },
	}
}

func Int64(key string, value int64) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Int64(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Int64(k, value) },
	}
}

func Float64(key string, value float64) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Float64(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Float64(k, value) },
	}
}

func Bool(key string, value bool) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Bool(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Bool(k, value) },
	}
}

// Duration logs milliseconds.
func Duration(key string, value time.Duration) Field {
	ms := value.Milliseconds()
	return Int64(key, ms)
}

func Time(key string, value time.Time) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Time(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Time(k, value) },
	}
}

// Error attaches err under the "error" key.
func Error(err error) Field {
	return Field{
		key:   zerolog.ErrorFieldName,
		apply: func(e *zerolog.Event, _ string) { e.Err(err) },
		ctx:   func(c zerolog.Context, _ string) zerolog.Context { return c.Err(err) },
	}
}

func Any(key string, value interface{}) Field {
	return Field{
		key:   key,
		apply: func(e *zerolog.Event, k string) { e.Interface(k, value) },
		ctx:   func(c zerolog.Context, k string) zerolog.Context { return c.Interface(k, value) },
	}
}
