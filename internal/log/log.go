// Package log configures structured logging on top of log/slog.
//
// A logger is built once at startup and handed to components through
// their constructors; no package keeps a global. Components scope their
// output with With:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	svc := knowledge.NewService(store, index, embedder, 0, logger.With("component", "knowledge"))
//	rtr := router.New(g, model, logger.With("component", "router"))
//
// Tests pass log.NewNop() to silence output, or NewWithWriter over a
// bytes.Buffer to assert on what was logged.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so constructors can take a dependency
// without a custom interface. With(), groups, and the rest of the slog
// surface stay available to callers.
type Logger = *slog.Logger

// Config defines logger construction options.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON selects JSON output instead of the text handler.
	JSON bool

	// AddSource annotates records with the calling source location.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use it with a
// buffer to inspect output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test-only: wiring it
// into production code silences the log entirely.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
