package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger represents a simple logger interface
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// FileConfig configures the rotated log file
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type options struct {
	output io.Writer
	file   *FileConfig
	fields map[string]interface{}
}

// Option customizes the logger
type Option func(*options)

// WithOutput replaces stdout as the primary sink
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithFile also writes to a size rotated file
func WithFile(cfg FileConfig) Option {
	return func(o *options) {
		if cfg.Path != "" {
			o.file = &cfg
		}
	}
}

// WithField attaches a field to every entry
func WithField(key string, value interface{}) Option {
	return func(o *options) {
		o.fields[key] = value
	}
}

type zeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new logger with the specified level
func NewLogger(level string, opts ...Option) Logger {
	o := &options{
		output: os.Stdout,
		fields: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	out := o.output

	if o.file != nil {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   o.file.Path,
			MaxSize:    o.file.MaxSizeMB,
			MaxBackups: o.file.MaxBackups,
			MaxAge:     o.file.MaxAgeDays,
		})
	}

	zl := zerolog.New(out).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Fields(o.fields).
		Logger()

	return &zeroLogger{zl: zl}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Debug(msg string, keyvals ...interface{}) {
	write(l.zl.Debug(), msg, keyvals)
}

func (l *zeroLogger) Info(msg string, keyvals ...interface{}) {
	write(l.zl.Info(), msg, keyvals)
}

func (l *zeroLogger) Warn(msg string, keyvals ...interface{}) {
	write(l.zl.Warn(), msg, keyvals)
}

func (l *zeroLogger) Error(msg string, keyvals ...interface{}) {
	write(l.zl.Error(), msg, keyvals)
}

// write turns alternating key/value pairs into structured fields. A trailing
// key without a value is logged as "missing".
func write(e *zerolog.Event, msg string, keyvals []interface{}) {
	if e == nil {
		return
	}

	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)

		if !ok {
			key = "unknown"
		}

		if i+1 >= len(keyvals) {
			e = e.Str(key, "missing")
			break
		}

		if err, isErr := keyvals[i+1].(error); isErr {
			e = e.AnErr(key, err)
			continue
		}

		e = e.Interface(key, keyvals[i+1])
	}

	e.Msg(msg)
}
