package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field is a single structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logging is the logger contract handed to every component.
type Logging interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	With(fields ...Field) Logging
}

// Option configures a Logger.
type Option func(*logrus.Logger)

// WithOutput redirects log output.
func WithOutput(w io.Writer) Option {
	return func(l *logrus.Logger) {
		l.SetOutput(w)
	}
}

// WithJSON switches to JSON formatted entries.
func WithJSON() Option {
	return func(l *logrus.Logger) {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyTime: "timestamp",
			},
		})
	}
}

// WithLevel sets the minimum level by name ("debug", "info", ...).
// Unknown names leave the level untouched.
func WithLevel(level string) Option {
	return func(l *logrus.Logger) {
		if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
			l.SetLevel(lvl)
		}
	}
}

// Logger wraps a logrus entry so fields accumulate through With.
type Logger struct {
	entry *logrus.Entry
}

var defaultLogger = NewLogger()

// NewLogger creates a text logger on stdout unless options say otherwise.
func NewLogger(opts ...Option) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	l.SetLevel(logrus.InfoLevel)
	for _, opt := range opts {
		opt(l)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a logger that writes nowhere. Handy in tests.
func Discard() *Logger {
	return NewLogger(WithOutput(io.Discard))
}

// Default returns the package level logger.
func Default() *Logger {
	return defaultLogger
}

// SetDebug toggles debug output on the default logger.
func SetDebug(debug bool) {
	if debug {
		defaultLogger.entry.Logger.SetLevel(logrus.DebugLevel)
		return
	}
	defaultLogger.entry.Logger.SetLevel(logrus.InfoLevel)
}

// Configure replaces the default logger's options.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(defaultLogger.entry.Logger)
	}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...Field) Logging {
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return &Logger{entry: l.entry.WithFields(data)}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// LogWithFields returns the default logger decorated with fields.
func LogWithFields(fields ...Field) Logging {
	return defaultLogger.With(fields...)
}

// Info logs on the default logger.
func Info(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

// Debugf logs a formatted message on the default logger.
func Debugf(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

// Warnf logs a formatted warning on the default logger.
func Warnf(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

// Errorf logs a formatted error on the default logger.
func Errorf(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}
