package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _log = logrus.New()

// Init initializes the global logger with output writer and debug level.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		_log.SetLevel(logrus.InfoLevel)
		_log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Setup initializes the logger writing to console and, when logFile is set,
// to a rotated file as well. The returned closer flushes the rotator.
func Setup(debug bool, console io.Writer, logFile string) io.Closer {
	if logFile == "" {
		Init(debug, console)
		return io.NopCloser(nil)
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		Init(debug, console)
		Log().WithError(err).Warn("log directory unavailable, logging to console only")
		return io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	if console == nil {
		console = os.Stdout
	}
	Init(debug, io.MultiWriter(console, rotator))
	return rotator
}

// Log returns a standard logger entry to use across packages.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

// WithFields returns a logger entry with provided fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}
