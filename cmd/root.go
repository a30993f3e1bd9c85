// Package cmd provides the deskwise CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/config"
	"github.com/deskwise/deskwise/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "deskwise",
	Short: "Deskwise - internal helpdesk knowledge assistant",
	Long: `Deskwise answers employee questions from uploaded knowledge documents.

Documents are chunked, embedded, and indexed per category; questions are
routed to a category, grounded in retrieved chunks, and answered with
citations. Run "deskwise serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment enables
// debug-level output.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// withApp loads configuration, builds the application, runs fn, and
// tears everything down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}
