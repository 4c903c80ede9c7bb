package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"urlbox/internal/platform/config"
)

// Init configures the global logger from cfg. File output falls back to
// stdout when the file cannot be opened.
func Init(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := io.Writer(os.Stdout)
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := openFile(cfg.FilePath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.FilePath).Msg("failed to open log file")
		} else {
			out = file
		}
	}

	log.Logger = New(cfg, out)
}

// New builds a logger writing to out in the configured format.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stdout}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
}
