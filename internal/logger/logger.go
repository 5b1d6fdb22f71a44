// Package logger configures the slog logger used by shadowctl.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// EnvLevel names the environment variable that enables logging without flags.
const EnvLevel = "SHADOWCTL_LOG"

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() to enable logging.
var L *slog.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level. Default: LevelInfo
	JSON    bool       // Emit JSON records instead of colored text
	NoColor bool       // Disable colors even on a terminal
	Writer  *os.File   // Destination. Default: os.Stderr
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) {
	if !opts.Enabled {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
		return
	}

	L = slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.TimeOnly,
		NoColor:    opts.NoColor || !isatty.IsTerminal(w.Fd()),
	}))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// FromEnv returns options derived from EnvLevel. Logging stays disabled when
// the variable is unset or invalid.
func FromEnv() Options {
	v, ok := os.LookupEnv(EnvLevel)
	if !ok {
		return Options{}
	}
	level, err := ParseLevel(v)
	if err != nil {
		return Options{}
	}
	return Options{Enabled: true, Level: level}
}
