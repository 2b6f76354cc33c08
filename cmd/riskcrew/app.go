// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/riskcrew/pkg/alerts"
	"github.com/jllopis/riskcrew/pkg/cache"
	"github.com/jllopis/riskcrew/pkg/chat"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/crew"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/guardrails"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/riskdb"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/tools"
	"github.com/jllopis/riskcrew/pkg/vector"
	"github.com/jllopis/riskcrew/pkg/vector/ollama"
	"github.com/jllopis/riskcrew/pkg/vector/qdrant"
)

// app holds the services shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	db       *sql.DB
	cache    cache.Cache
	alerts   alerts.Publisher
	store    vector.Store
	embedder vector.Embedder
	repo     *riskdb.Repository
	registry *tools.Registry
	provider llm.Provider
	crew     *crew.Crew
	health   *core.DefaultHealthCheckProvider

	closers []func() error
}

type appOptions struct {
	// provider replaces the configured LLM provider.
	provider llm.Provider
	// withCrew builds the crew and its audit store.
	withCrew bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger, health: core.NewDefaultHealthCheckProvider(5 * time.Second)}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	metrics, err := telemetry.NewMetrics(ctx)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = metrics
	a.health.SetRecorder(metrics)

	db, err := riskdb.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return errors.New(errors.CodeStorage, "open sqlite store", err).WithContext("path", cfg.Store.SQLitePath)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.health.RegisterChecker("sqlite", core.PingChecker(db.PingContext, core.HealthUnhealthy))

	history, err := riskdb.NewHistory(db)
	if err != nil {
		return err
	}

	if a.cache, err = cache.New(ctx, cfg.Cache); err != nil {
		return errors.New(errors.CodeUnavailable, "connect cache", err).WithContext("provider", cfg.Cache.Provider)
	}
	a.health.RegisterChecker("cache", core.PingChecker(a.cache.Ping, core.HealthDegraded))

	if a.alerts, err = alerts.New(cfg.Alerts.NATSURL, cfg.Alerts.SubjectPrefix, a.logger); err != nil {
		return errors.New(errors.CodeUnavailable, "connect alert bus", err).WithContext("url", cfg.Alerts.NATSURL)
	}
	a.closers = append(a.closers, a.alerts.Close)

	if err := a.initVector(); err != nil {
		return err
	}

	a.repo = riskdb.New(a.store, a.embedder,
		riskdb.WithCollectionPrefix(cfg.Vector.CollectionPrefix),
		riskdb.WithScoring(risk.FromConfig(cfg.Risk)),
		riskdb.WithHistory(history),
		riskdb.WithCache(a.cache),
		riskdb.WithAlerts(a.alerts),
		riskdb.WithMetrics(metrics),
		riskdb.WithLogger(a.logger),
	)
	if err := a.repo.Init(ctx); err != nil {
		return err
	}
	a.health.RegisterChecker("vector_store", core.PingChecker(a.repo.Ping, core.HealthUnhealthy))
	a.registry = tools.NewRegistry(a.repo)

	a.provider = opts.provider
	if a.provider == nil {
		a.provider = a.newProvider()
	}
	if p, ok := a.provider.(interface{ Ping(context.Context) error }); ok {
		a.health.RegisterChecker("llm", core.PingChecker(p.Ping, core.HealthDegraded))
	}

	if opts.withCrew {
		return a.initCrew()
	}
	return nil
}

func (a *app) initVector() error {
	cfg := a.cfg
	switch cfg.Vector.Provider {
	case "qdrant":
		store, err := qdrant.New(cfg.Vector.QdrantAddr)
		if err != nil {
			return errors.New(errors.CodeVectorStore, "connect qdrant", err).WithContext("addr", cfg.Vector.QdrantAddr)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	default:
		a.store = vector.NewInMemoryStore()
	}

	switch cfg.Embedder.Provider {
	case "hash":
		a.embedder = vector.NewHashEmbedder(cfg.Embedder.Dimension)
	default:
		a.embedder = vector.NewResilientEmbedder(
			ollama.NewEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model),
			resilience.DefaultRetryConfig(),
		).WithMetrics(a.metrics)
	}
	return nil
}

func (a *app) newProvider() llm.Provider {
	cfg := a.cfg.LLM
	if cfg.Provider == "mock" {
		return &llm.MockProvider{Response: "The risk analysis crew is running with the offline mock model."}
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "llm",
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
			a.logger.Warn("llm.breaker.state",
				slog.String("breaker", name),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
			a.metrics.RecordCircuitBreakerState(context.Background(), name, to.Gauge())
		},
	})
	return llm.NewResilient(llm.NewOllama(cfg.BaseURL, cfg.Timeout), resilience.DefaultRetryConfig(), breaker).
		WithMetrics(a.metrics)
}

// initCrew builds the crew. Without vector memory there is nothing for the
// agents to reason over, so the crew stays unset and chat answers with the
// unavailable message.
func (a *app) initCrew() error {
	if a.cfg.Vector.Provider == "none" {
		a.logger.Warn("crew.disabled", slog.String("reason", "vector.provider is none"))
		return nil
	}
	def, err := crew.LoadDefinition(a.cfg.Crew.Definition)
	if err != nil {
		return err
	}
	audit, err := crew.NewSQLiteAuditStore(a.db)
	if err != nil {
		return err
	}
	opts := append(crew.FromConfig(a.cfg),
		crew.WithAuditStore(audit),
		crew.WithMetrics(a.metrics),
		crew.WithLogger(a.logger),
		crew.WithEventEmitter(core.LogEmitter{Logger: a.logger}),
	)
	a.crew, err = crew.New(def, a.provider, a.registry, opts...)
	return err
}

// runner returns the crew as a crew.Runner, nil when disabled.
func (a *app) runner() crew.Runner {
	if a.crew == nil {
		return nil
	}
	return a.crew
}

// seedIfEmpty stores the sample data on a fresh store.
func (a *app) seedIfEmpty(ctx context.Context) error {
	empty, err := a.repo.Empty(ctx)
	if err != nil || !empty {
		return err
	}
	counts, err := a.repo.Seed(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("riskdb.seeded",
		slog.Int("projects", counts.Projects),
		slog.Int("risks", counts.Risks),
		slog.Int("market_data", counts.MarketData),
	)
	return nil
}

func (a *app) newHistory() (chat.History, error) {
	h, err := chat.NewFileHistory(a.cfg.Chat.HistoryPath, a.cfg.Chat.MaxHistory)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open chat history", err).WithContext("path", a.cfg.Chat.HistoryPath)
	}
	return h, nil
}

// guard returns the chat guardrails, nil when disabled.
func (a *app) guard() *guardrails.Guard {
	if !a.cfg.Chat.Guardrails {
		return nil
	}
	return guardrails.Default(guardrails.WithLogger(a.logger))
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
