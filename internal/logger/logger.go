// Package logger configures log/slog for the throttler from LoggingConfig.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"throttler/internal/models"
	"throttler/internal/version"
)

// ServiceName is attached to every record.
const ServiceName = "throttler"

// Setup opens the configured output and builds a logger on it. The returned
// close func releases a log file and is a no-op for stdout and stderr.
func Setup(cfg models.LoggingConfig, ver version.Info) (*slog.Logger, func() error, error) {
	w, closeFn, err := openOutput(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	logger, err := New(w, cfg, ver)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}

// New builds a logger writing to w. Output and FilePath in cfg are ignored.
func New(w io.Writer, cfg models.LoggingConfig, ver version.Info) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: replaceAttr,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With(
		slog.String("service", ServiceName),
		slog.Group("build",
			slog.String("version", ver.Version),
			slog.String("commit", ver.GitCommit),
			slog.String("date", ver.BuildDate),
		),
		slog.String("instance_id", ver.InstanceID),
	), nil
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if s == "" || strings.ContainsAny(s, "+-") {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", s)
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", s)
	}
	return level, nil
}

// replaceAttr prints windows and retry delays as "1m0s" and non-record
// timestamps such as reset times in RFC 3339 UTC.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindDuration:
		return slog.String(a.Key, a.Value.Duration().String())
	case slog.KindTime:
		if a.Key != slog.TimeKey {
			return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339))
		}
	}
	return a
}

func openOutput(output, path string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, noop, nil
	case "stderr":
		return os.Stderr, noop, nil
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return f, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log output: %s", output)
	}
}
