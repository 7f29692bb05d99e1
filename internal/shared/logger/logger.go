package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"firestore-typed/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebug = "DEBUG"
	logLevelInfo  = "INFO"
	logLevelWarn  = "WARN"
	logLevelError = "ERROR"
	logLevelFatal = "FATAL"

	logFormatJSON = "json"

	envProduction = "production"
	envProd       = "prod"

	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	textTimestamp   = "2006-01-02 15:04:05"

	// extraFieldKey collects trailing arguments that are neither zap fields nor key/value pairs.
	extraFieldKey = "extra"
)

// Logger defines the interface for structured logging operations.
//
// The non-formatted methods take a message followed by structured fields. Fields may be
// zap.Field values or alternating key/value pairs:
//
//	log.Info("listener attached", zap.String("path", path), "subscribers", n)
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// LogrusLogger implements the Logger interface using logrus
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a new logger configured from LOG_LEVEL, LOG_FORMAT and ENVIRONMENT.
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetLevel(getLogLevel())
	logger.SetFormatter(getLogFormatter())
	logger.SetOutput(os.Stdout)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

// NewLoggerWithOutput creates a logger with an explicit level and format writing to out.
func NewLoggerWithOutput(level string, format string, out io.Writer) Logger {
	logger := logrus.New()

	if parsedLevel, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsedLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	switch format {
	case logFormatJSON:
		logger.SetFormatter(jsonFormatter())
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}
	logger.SetOutput(out)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debug(args ...interface{}) {
	l.log(logrus.DebugLevel, args)
}

func (l *LogrusLogger) Info(args ...interface{}) {
	l.log(logrus.InfoLevel, args)
}

func (l *LogrusLogger) Warn(args ...interface{}) {
	l.log(logrus.WarnLevel, args)
}

func (l *LogrusLogger) Error(args ...interface{}) {
	l.log(logrus.ErrorLevel, args)
}

// Fatal logs a fatal message and exits
func (l *LogrusLogger) Fatal(args ...interface{}) {
	entry, msg := l.split(args)
	entry.Fatal(msg)
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Fatalf logs a formatted fatal message and exits
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// WithFields adds structured fields to the logger
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext copies the known context values into log fields.
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	fields := logrus.Fields{}

	addContextField(ctx, contextkeys.RequestIDKey, "request_id", fields)
	addContextField(ctx, contextkeys.UserIDKey, "user_id", fields)
	addContextField(ctx, contextkeys.OperationKey, "operation", fields)
	addContextField(ctx, contextkeys.CollectionKey, "collection", fields)

	return &LogrusLogger{entry: l.entry.WithFields(fields)}
}

// WithComponent adds component name to the logger
func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{entry: l.entry.WithField("component", component)}
}

func (l *LogrusLogger) log(level logrus.Level, args []interface{}) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	entry, msg := l.split(args)
	entry.Log(level, msg)
}

// split takes the first argument as the message and lifts the rest into logrus fields.
func (l *LogrusLogger) split(args []interface{}) (*logrus.Entry, string) {
	if len(args) == 0 {
		return l.entry, ""
	}
	msg := fmt.Sprint(args[0])
	fields := liftFields(args[1:])
	if len(fields) == 0 {
		return l.entry, msg
	}
	return l.entry.WithFields(fields), msg
}

func liftFields(args []interface{}) logrus.Fields {
	if len(args) == 0 {
		return nil
	}
	fields := logrus.Fields{}
	var extra []interface{}
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case zap.Field:
			enc := zapcore.NewMapObjectEncoder()
			v.AddTo(enc)
			for k, val := range enc.Fields {
				fields[k] = val
			}
		case string:
			if i+1 < len(args) {
				fields[v] = args[i+1]
				i++
				continue
			}
			extra = append(extra, v)
		default:
			extra = append(extra, v)
		}
	}
	if len(extra) > 0 {
		fields[extraFieldKey] = extra
	}
	return fields
}

func addContextField(ctx context.Context, key interface{}, fieldName string, fields logrus.Fields) {
	if ctx == nil {
		return
	}
	if val := ctx.Value(key); val != nil {
		if strVal, ok := val.(string); ok && strVal != "" {
			fields[fieldName] = strVal
		}
	}
}

func getLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case logLevelDebug, "debug":
		return logrus.DebugLevel
	case logLevelInfo, "info":
		return logrus.InfoLevel
	case logLevelWarn, "warn", "WARNING", "warning":
		return logrus.WarnLevel
	case logLevelError, "error":
		return logrus.ErrorLevel
	case logLevelFatal, "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func getLogFormatter() logrus.Formatter {
	env := os.Getenv("ENVIRONMENT")
	if os.Getenv("LOG_FORMAT") == logFormatJSON || env == envProduction || env == envProd {
		return jsonFormatter()
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: textTimestamp,
		ForceColors:     true,
	}
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

var defaultLogger = NewLogger()

// Default returns the package-level logger.
func Default() Logger {
	return defaultLogger
}

// Info logs an info message using the default logger
func Info(args ...interface{}) {
	defaultLogger.Info(args...)
}

// Warn logs a warning message using the default logger
func Warn(args ...interface{}) {
	defaultLogger.Warn(args...)
}

// Error logs an error message using the default logger
func Error(args ...interface{}) {
	defaultLogger.Error(args...)
}

// WithComponent creates a logger with component information
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}
