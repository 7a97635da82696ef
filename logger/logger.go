package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
)

const fileName = "bridge.log"

type Config struct {
	DataDir string
	DevMode bool
	Level   string
	// Format is "json" or "text".
	Format string
	// File overrides dataDir/bridge.log.
	File string
	// Console receives logs when no file is used. Defaults to stdout.
	Console io.Writer
}

// path returns where logs go, empty for stdout.
func (c Config) path() string {
	switch {
	case c.File != "":
		return c.File
	case c.DevMode || c.DataDir == "":
		return ""
	default:
		return filepath.Join(c.DataDir, fileName)
	}
}

// Init installs the global slog logger. Dev mode logs to Console unless
// File is set; otherwise logs are appended to dataDir/bridge.log.
// The returned closer releases the log file and is never nil.
func Init(cfg Config) io.Closer {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	w, closer := openOutput(cfg.path(), console)
	slog.SetDefault(slog.New(newHandler(w, cfg.Format, opts)))
	return closer
}

func openOutput(path string, console io.Writer) (io.Writer, io.Closer) {
	if path == "" {
		return console, nopCloser{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("failed to create log directory, using console", "file", path, "error", err)
		return console, nopCloser{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open log file, using console", "file", path, "error", err)
		return console, nopCloser{}
	}
	return f, f
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewRequestLogger creates a logger with a unique requestId for RPC handlers.
func NewRequestLogger() *slog.Logger {
	return slog.With("requestId", uuid.Must(uuid.NewV7()).String())
}

// LogPanic logs a recovered panic value with its stack trace.
func LogPanic(r any, msg string, args ...any) {
	args = append(args, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	slog.Error(msg, args...)
}
