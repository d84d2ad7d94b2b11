package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbonscope-lab/carbonscope/internal/analytics"
	coreanalytics "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
	corecache "github.com/carbonscope-lab/carbonscope/internal/core/cache"
	corecfg "github.com/carbonscope-lab/carbonscope/internal/core/config"
	"github.com/carbonscope-lab/carbonscope/internal/refresh"
	"github.com/carbonscope-lab/carbonscope/internal/server"
	"github.com/carbonscope-lab/carbonscope/internal/source"
)

func main() {
	configPath := flag.String("config", "carbonscope.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize the shared result cache. Single instance, injected into
	// the engine: there is no package-level cache state anywhere.
	resultCache := corecache.New[*coreanalytics.Result](corecache.Options{
		MaxSize:          cfg.Cache.MaxSize,
		DefaultTTL:       cfg.Cache.ParsedDefaultTTL(),
		EvictionFraction: cfg.Cache.EvictionFraction,
		SweepInterval:    cfg.Cache.ParsedSweepInterval(),
		PrefetchWorkers:  cfg.Cache.PrefetchWorkers,
	})
	go resultCache.RunSweeper(ctx)

	// 3. Load per-dataset cache policies
	policies, err := analytics.LoadPolicies(cfg.Policies.Dir, corecache.Config{
		TTL:      cfg.Cache.ParsedDefaultTTL(),
		Strategy: cfg.Cache.EvictionStrategy,
	})
	if err != nil {
		slog.Error("Failed to load cache policies", "error", err)
		os.Exit(1)
	}

	// 4. Initialize the Aggregation Engine
	engine := analytics.NewEngine(resultCache, policies, analytics.EngineOptions{
		Thresholds: coreanalytics.Thresholds{
			DirectMax:      cfg.Analytics.DirectMax,
			BatchMax:       cfg.Analytics.BatchMax,
			ConcurrencyMin: cfg.Analytics.ConcurrencyMin,
			ChunkSize:      cfg.Analytics.ChunkSize,
		},
		MaxPoints: cfg.Analytics.MaxPoints,
	})

	// 5. Live feed hub
	hub := server.NewHub()
	go hub.Run(ctx)

	// 6. Refresh Orchestrator over the simulated upstream feed
	sim := source.NewSimulator(cfg.Refresh.Seed)
	orchestrator := refresh.NewOrchestrator(sim, engine, hub, refresh.Options{
		Interval:  cfg.Refresh.ParsedInterval(),
		BatchSize: cfg.Refresh.BatchSize,
	})
	if cfg.Refresh.Enabled {
		go func() {
			if err := orchestrator.Start(ctx); err != nil {
				slog.Error("Refresh orchestrator stopped", "error", err)
			}
		}()
	}

	// 7. HTTP Server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, engine, orchestrator, hub, cfg.Server.Mode)
	if err := srv.Run(ctx); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
