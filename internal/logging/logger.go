// Package logging provides structured logging for the patient queue core.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup configures the global logger output and minimum level.
// Unknown level strings fall back to info.
func Setup(out io.Writer, level string) {
	logger.SetOutput(out)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// Debug logs a debug message with optional context fields.
func Debug(message string, context map[string]interface{}) {
	logger.WithFields(logrus.Fields(context)).Debug(message)
}

// Info logs an info message with optional context fields.
func Info(message string, context map[string]interface{}) {
	logger.WithFields(logrus.Fields(context)).Info(message)
}

// Warn logs a warning message with optional context fields.
func Warn(message string, context map[string]interface{}) {
	logger.WithFields(logrus.Fields(context)).Warn(message)
}

// Error logs an error message with the error and optional context fields.
func Error(message string, err error, context map[string]interface{}) {
	entry := logger.WithFields(logrus.Fields(context))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// ErrorWithCode logs an error message tagged with an application error code.
func ErrorWithCode(message string, code string, err error, context map[string]interface{}) {
	entry := logger.WithFields(logrus.Fields(context)).WithField("code", code)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
