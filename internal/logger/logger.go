// Package logger builds the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config holds logger configuration.
type Config struct {
	Writer io.Writer
	Level  string
	// Format is "json" or "text". Empty picks json for production.
	Format      string
	Environment string
}

// New creates a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	log.SetOutput(cfg.Writer)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	format := cfg.Format
	if format == "" && cfg.Environment == "production" {
		format = "json"
	}
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

// Discard returns a logger that writes nowhere. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TokenHint returns a short, loggable prefix of a secret token.
func TokenHint(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "…"
}
