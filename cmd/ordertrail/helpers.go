package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/ordertrail/internal/config"
	"github.com/Veraticus/ordertrail/internal/engine"
	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/llm"
	"github.com/Veraticus/ordertrail/internal/match"
	"github.com/Veraticus/ordertrail/internal/service"
	"github.com/Veraticus/ordertrail/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/ordertrail/ordertrail.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initEngine wires the full pipeline: storage, completion client, extraction
// router, and retailer matcher.
func initEngine(ctx context.Context, bodies service.BodyStore) (*engine.Engine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	client, err := llm.NewClient(llmCfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	logger := slog.Default()
	router := extract.NewRouter(client, logger)
	matcher := match.New(store, logger)

	return engine.New(store, router, matcher, bodies, logger), store, nil
}
