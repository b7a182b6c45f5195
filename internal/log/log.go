// Package log provides the process-wide structured logger backed by logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"firestige.xyz/flowstat/internal/config"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

const timeLayout = "2006-01-02 15:04:05.000"

var (
	mu     sync.RWMutex
	logger Logger = &logrusAdapter{entry: logrus.NewEntry(defaultLogrus())}
	closer io.Closer
)

func defaultLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&formatter{pattern: defaultPattern, time: timeLayout})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// GetLogger returns the process logger. Before Init it logs at info
// level to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger according to cfg. Output always goes
// to stdout, and additionally to a rotating file when enabled.
func Init(cfg config.LogConfig) error {
	l, c, err := build(cfg, os.Stdout)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer.Close()
	}
	logger, closer = l, c
	return nil
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// build creates a logger writing to stdout plus the configured outputs.
func build(cfg config.LogConfig, stdout io.Writer) (Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	f, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	out := NewMultiWriter().Add(stdout)
	var c io.Closer
	if cfg.Outputs.File.Enabled {
		fw, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file output: %w", err)
		}
		out.Add(fw)
		c = fw
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(f)
	l.SetLevel(level)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, c, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}, nil
	case "text":
		return &formatter{pattern: defaultPattern, time: timeLayout}, nil
	case "prefixed":
		return &prefixed.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timeLayout,
			ForceFormatting: true,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json, text or prefixed)", format)
	}
}

// parseLevel converts a configured level name to a logrus level.
func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}
