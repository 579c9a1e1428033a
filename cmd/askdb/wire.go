package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/mcpclient"
	"github.com/askdb/askdb/internal/schemacache"
	"github.com/askdb/askdb/internal/searchindex"
	"github.com/askdb/askdb/internal/store"
	"github.com/askdb/askdb/internal/telemetry"
)

// deps is everything an orchestrator-backed command needs, plus a cleanup
// that closes the underlying connections.
type deps struct {
	orchestrator *agent.Orchestrator
	store        *store.Store
	index        *searchindex.Index
	redis        *redis.Client
	telemetry    *telemetry.Telemetry
	cleanup      func()
}

func buildDeps(ctx context.Context, cfg *config.Config, withStore bool) (*deps, error) {
	logger := log.New(log.Writer(), "[ASKDB] ", log.LstdFlags)
	tel := telemetry.New(cfg.Telemetry, logger)

	provider, err := agent.NewOpenAIProvider(cfg.LLM, tel)
	if err != nil {
		return nil, err
	}

	registry := mcpclient.NewRegistry()
	closers := []func(){func() { _ = registry.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*deps, error) {
		cleanup()
		return nil, err
	}

	if err := registry.Connect(ctx, "sql", cfg.MCP.SQLServer); err != nil {
		return fail(fmt.Errorf("connecting to sql tool server: %w", err))
	}
	if err := registry.Connect(ctx, "mongo", cfg.MCP.MongoServer); err != nil {
		return fail(fmt.Errorf("connecting to mongo tool server: %w", err))
	}
	names := make([]string, 0, len(registry.Tools()))
	for _, tool := range registry.Tools() {
		names = append(names, tool.Name)
	}
	logger.Printf("connected tools: %s", strings.Join(names, ", "))

	d := &deps{telemetry: tel, cleanup: cleanup}

	if withStore {
		if cfg.Databases.Postgres.URL == "" {
			return fail(fmt.Errorf("postgres not configured (databases.postgres.url)"))
		}
		st, err := store.Open(ctx, cfg.Databases.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("opening store: %w", err))
		}
		closers = append(closers, func() { _ = st.Close() })
		d.store = st
	}

	if cfg.Reports.IndexPath != "" {
		idx, err := searchindex.Open(cfg.Reports.IndexPath)
		if err != nil {
			return fail(fmt.Errorf("opening search index: %w", err))
		}
		closers = append(closers, func() { _ = idx.Close() })
		d.index = idx
	}

	var schemas *schemacache.Cache
	if cfg.Databases.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr,
			Password: cfg.Databases.Redis.Password,
			DB:       cfg.Databases.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		d.redis = rdb
		schemas = schemacache.New(rdb, cfg.Databases.Redis.TTL)
	}

	orch, err := agent.NewOrchestrator(cfg, logger, tel, provider, registry, d.store, d.index, schemas)
	if err != nil {
		return fail(err)
	}
	d.orchestrator = orch
	return d, nil
}
