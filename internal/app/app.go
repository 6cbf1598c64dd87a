// Package app wires configuration, the model provider, the memory
// directories and the tool collaborators into a running agent.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paydesk/paydesk/internal/agent"
	"github.com/paydesk/paydesk/internal/config"
	"github.com/paydesk/paydesk/internal/log"
	"github.com/paydesk/paydesk/internal/persona"
	"github.com/paydesk/paydesk/internal/retrieval"
	"github.com/paydesk/paydesk/internal/tools"
)

// App is the application container. Everything except the current Agent is
// fixed at Setup; SwitchPersona replaces the Agent (and with it the
// conversation) while the provider, pool and tool registry stay shared.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool // nil when no warehouse is configured
	Registry *tools.Registry

	Agent *agent.Agent
}

// SwitchPersona replaces the current agent with a fresh one for the named
// persona. The new agent opens the persona's own memory directory and starts
// with empty history.
func (a *App) SwitchPersona(name string) error {
	p, err := persona.Lookup(name)
	if err != nil {
		return err
	}

	retriever, err := retrieval.Open(a.MemoryDir(p), a.Embedder, a.Logger)
	if err != nil {
		return fmt.Errorf("opening memory for persona %s: %w", p.ID, err)
	}

	ag, err := agent.New(agent.Config{
		Client:        agent.NewGenkitClient(a.Genkit),
		ModelName:     a.Config.FullModelName(),
		Persona:       p,
		Retriever:     retriever,
		Registry:      a.Registry,
		Logger:        a.Logger,
		MaxToolRounds: a.Config.MaxToolRounds,
	})
	if err != nil {
		return fmt.Errorf("creating agent for persona %s: %w", p.ID, err)
	}

	a.Agent = ag
	return nil
}

// MemoryDir resolves a persona's memory directory under the configured root.
func (a *App) MemoryDir(p persona.Config) string {
	return filepath.Join(a.Config.MemoryRoot, p.MemoryDir)
}

// Indexer creates a memory-directory builder over the configured embedder.
func (a *App) Indexer() (*retrieval.Indexer, error) {
	return retrieval.NewIndexer(a.Embedder, a.Logger)
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("warehouse pool closed")
	}

	return nil
}
