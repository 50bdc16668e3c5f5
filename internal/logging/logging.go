// Package logging provides a process-wide zerolog logger, configured once
// at startup and used everywhere else through the package-level helpers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config controls the global logger's level, output format, and sink.
type Config struct {
	Level       string // trace, debug, info, warn, error; default info
	Format      string // "json" or "console"; default json
	Environment string // used to pick a sane default Format
	Output      io.Writer
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	Init(Config{Level: "info", Format: "json"})
}

// Init (re)configures the global logger. Safe to call more than once; main
// calls it exactly once at startup after config.Load.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		if strings.EqualFold(cfg.Environment, "development") {
			cfg.Format = "console"
		} else {
			cfg.Format = "json"
		}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"

	var output io.Writer = cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the current global logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &log
}

// With starts a child logger builder seeded from the global logger, for
// attaching component-specific fields (e.g. logging.With().Str("component", "pipeline").Logger()).
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}
