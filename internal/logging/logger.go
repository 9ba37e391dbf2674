package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"hittracker/internal/config"

	"github.com/rs/zerolog"
)

// Outputs accepted by logging.output.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
	// OutputTee пишет и в stdout, и в файл
	OutputTee = "tee"
)

// New builds the process logger from config. Empty fields mean JSON at info
// level on stdout. The returned closer is non-nil only when a log file is open.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &base, closer, nil
}

func parseLevel(raw string) zerolog.Level {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Output))
	switch mode {
	case "", OutputStdout:
		return os.Stdout, nil, nil
	case OutputStderr:
		return os.Stderr, nil, nil
	case OutputFile, OutputTee:
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=%s requires logging.file_path", mode)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		if mode == OutputTee {
			return zerolog.MultiLevelWriter(os.Stdout, file), file, nil
		}
		return file, file, nil
	default:
		return nil, nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
	}
}

// Component derives a child logger tagged with the component name.
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	l := base.With().Str("component", name).Logger()
	return &l
}

// Run derives a child logger carrying a sync run id.
func Run(base *zerolog.Logger, runID, kind string) *zerolog.Logger {
	l := base.With().Str("run_id", runID).Str("kind", kind).Logger()
	return &l
}
