// Package app builds the application: configuration in, fully wired
// components out. Setup constructs everything in dependency order and
// Close releases it in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskwise/deskwise/internal/api"
	"github.com/deskwise/deskwise/internal/config"
	"github.com/deskwise/deskwise/internal/embedding"
	"github.com/deskwise/deskwise/internal/knowledge"
	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/orchestrator"
	"github.com/deskwise/deskwise/internal/session"
	"github.com/deskwise/deskwise/internal/tools"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder *embedding.Client
	DBPool   *pgxpool.Pool

	Knowledge    *knowledge.Service
	Sessions     session.Store
	Registry     *tools.Registry
	Executor     *tools.Executor
	Tickets      *tools.MemoryTicketSink
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	otelCleanup func()
	dbCleanup   func()
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
