package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/db"
	"github.com/lucasnoah/dsmeta/internal/llm"
	"github.com/lucasnoah/dsmeta/internal/orchestrator"
	"github.com/lucasnoah/dsmeta/internal/search"
	"github.com/lucasnoah/dsmeta/internal/stage"
)

// newStages builds the step set with the configured model and search clients.
func newStages(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stage.Stages, error) {
	client, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	if llm.IsOffline(client) {
		log.Warn("no model configured, using local heuristics", zap.String("provider", cfg.LLM.Provider))
	}

	var provider search.Provider
	if cfg.Search.Enabled && cfg.Search.APIKey != "" {
		provider = search.NewTavily(cfg.Search.APIKey, cfg.Search.BaseURL,
			config.Duration(cfg.Search.Timeout, 0), log)
	}
	return stage.New(stage.Deps{Config: cfg, LLM: client, Search: provider, Log: log}), nil
}

// newPipeline wraps newStages in the orchestrator.
func newPipeline(ctx context.Context, cfg *config.Config, log *zap.Logger) (*orchestrator.Orchestrator, *stage.Stages, error) {
	s, err := newStages(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return orchestrator.NewPipeline(s, log), s, nil
}

// openDB opens and migrates the configured run history database.
func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.OpenConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// openHistory is openDB for commands where history is optional: failures are
// logged and a nil database returned.
func openHistory(cfg *config.Config, log *zap.Logger) *db.DB {
	database, err := openDB(cfg)
	if err != nil {
		log.Warn("run history unavailable", zap.Error(err))
		return nil
	}
	return database
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
