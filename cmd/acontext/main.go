package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/bus"
	"github.com/slyt3/Acontext/internal/app"
	"github.com/slyt3/Acontext/internal/config"
	"github.com/slyt3/Acontext/internal/server"
	"github.com/slyt3/Acontext/observer"
	"github.com/slyt3/Acontext/provider/openaicompat"
	"github.com/slyt3/Acontext/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 1. Load config
	cfg := config.Load(os.Getenv("ACONTEXT_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Observability (optional)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, cfg.Observer.ServiceName, cfg.Observer.Endpoint, pricing)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("observer shutdown failed", "error", err)
			}
		}()
	}

	// 3. Create providers
	var provider acontext.Provider = openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	var embedding acontext.EmbeddingProvider = openaicompat.NewEmbedding(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
	}

	// 4. Create store
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("parse database url", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.Database.PoolSize)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))

	// 5. Connect the bus
	busClient, err := bus.Dial(cfg.Bus.URL,
		bus.WithPrefetch(cfg.Bus.Prefetch),
		bus.WithHandlerTimeout(cfg.Bus.HandlerTimeout()),
		bus.WithMaxRetries(cfg.Bus.MaxRetries),
		bus.WithRetryDelayUnit(cfg.Bus.RetryDelayUnit()),
		bus.WithMessageTTL(cfg.Bus.MessageTTL()),
		bus.WithParkTTL(cfg.Bus.ParkTTL()),
		bus.WithLogger(logger))
	if err != nil {
		logger.Error("connect bus", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()

	// 6. Build the app and register consumers
	appOpts := []app.Option{app.WithLogger(logger)}
	if inst != nil {
		appOpts = append(appOpts, app.WithInstruments(inst))
	}
	core := app.New(cfg, store, busClient, provider, embedding, appOpts...)
	if err := core.Init(ctx); err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	if err := core.RegisterConsumers(busClient); err != nil {
		logger.Error("register consumers failed", "error", err)
		os.Exit(1)
	}

	// 7. Serve HTTP
	edge := server.New(store, core.Indexer(), core.Searcher(), core.Experience(), core, server.WithLogger(logger))
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: edge.Router()}
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}
