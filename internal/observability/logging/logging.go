// Package logging configures the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	log "github.com/sirupsen/logrus"
)

// Config selects logger output.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New returns a configured logrus logger. Format is "text" or "json".
func New(cfg Config) (*log.Logger, error) {
	logger := log.New()
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{QuoteEmptyFields: true, FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, eris.Errorf("logging: unknown format %q", cfg.Format)
	}

	level := log.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, eris.Wrapf(err, "logging: level %q", cfg.Level)
		}
		level = parsed
	}
	logger.SetLevel(level)
	return logger, nil
}
