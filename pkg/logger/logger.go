package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log *logrus.Logger
)

// Init configures the package logger. Unknown levels fall back to info, unknown
// formats to text with full timestamps.
func Init(level, format string) error {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	mu.Lock()
	log = l
	mu.Unlock()

	if level != "" && err != nil {
		l.Warnf("unknown log level %q, using info", level)
	}
	return nil
}

// std returns the configured logger, building a default one on first use so
// packages can log from tests without calling Init.
func std() *logrus.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// SetOutput redirects the logger; the chat CLI sends it to stderr.
func SetOutput(w io.Writer) {
	std().SetOutput(w)
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return std().WithFields(logrus.Fields(fields))
}

func Debugf(format string, args ...interface{}) { std().Debugf(format, args...) }

func Info(args ...interface{}) { std().Info(args...) }

func Infof(format string, args ...interface{}) { std().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { std().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { std().Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) { std().Fatalf(format, args...) }
