// SPDX-License-Identifier: MPL-2.0

// Package logging builds the CLI logger from configuration.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/capkit/capkit/internal/config"
)

// Prefix is the default logger prefix.
const Prefix = "capkit"

// New returns a logger writing to w at the configured level. An unknown level
// falls back to info.
func New(w io.Writer, cfg config.LogConfig) *log.Logger {
	level, err := log.ParseLevel(cfg.Level.String())
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          Prefix,
		Level:           level,
		ReportTimestamp: cfg.Timestamp,
		TimeFormat:      time.TimeOnly,
	})
}

// Verbose lowers the level of l to debug.
func Verbose(l *log.Logger) *log.Logger {
	l.SetLevel(log.DebugLevel)
	return l
}
