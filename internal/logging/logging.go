package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, format and destination of the global logger.
type Config struct {
	Level   string `mapstructure:"level"`
	Pretty  bool   `mapstructure:"pretty"`
	File    string `mapstructure:"file"`
	Service string `mapstructure:"service"`
}

// FromEnv reads LOG_LEVEL and LOG_PRETTY.
func FromEnv() Config {
	return Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Pretty: os.Getenv("LOG_PRETTY") != "" && os.Getenv("LOG_PRETTY") != "0",
	}
}

// New builds a logger writing to w.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	logger := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Service != "" {
		logger = logger.With().Str("service", cfg.Service).Logger()
	}
	return logger
}

// Init replaces the global logger and bridges the stdlib log package to it.
// With cfg.File set, output goes to that file instead of stderr so it does
// not fight a full-screen UI for the terminal. The returned closer releases
// the file.
func Init(cfg Config) (io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	log.Logger = New(cfg, w)
	zerolog.DefaultContextLogger = &log.Logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger.With().Str("source", "stdlog").Logger())
	return closer, nil
}

// ParseLevel maps LOG_LEVEL values. Unknown or empty values give error
// level, so a release build stays quiet.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.ErrorLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
