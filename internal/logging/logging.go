// Package logging wraps charmbracelet/log to build the one leveled logger
// that ocdctl's CLI and endurance supervisor share.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New builds a logger writing to stderr with the given level name
// ("debug", "info", "warn", "error"); an unrecognized name falls back to
// info.
func New(levelName string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	logger.SetLevel(parseLevel(levelName))
	return logger
}

func parseLevel(name string) log.Level {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
