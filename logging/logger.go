package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggersMu sync.Mutex
	loggers   = make(map[string]*logrus.Entry)
	level     = logrus.InfoLevel
	format    = ""
)

// Configure sets the process-wide level and format for loggers created
// after this call. It does not retroactively change already-created
// component loggers. format is "json", "text", or "" for auto (pretty
// on a TTY, JSON otherwise) — mirrors how the teacher daemon picks a
// formatter based on terminal attachment.
func Configure(levelName, formatName string) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if lvl, err := logrus.ParseLevel(levelName); err == nil {
		level = lvl
	}
	format = strings.ToLower(formatName)
}

// NewLogger returns the component-scoped logger, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}

	base := logrus.New()
	base.SetLevel(level)
	base.SetFormatter(resolveFormatter())

	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}

func resolveFormatter() logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{}
	case "text":
		return &TextFormatter{}
	default:
		if isatty.IsTerminal(os.Stdout.Fd()) {
			return &TextFormatter{}
		}
		return &logrus.JSONFormatter{}
	}
}
