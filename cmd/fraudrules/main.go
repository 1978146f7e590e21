package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fraudrules/fraudrules/internal/bus"
	"github.com/fraudrules/fraudrules/internal/director"
	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/history"
	"github.com/fraudrules/fraudrules/internal/httpapi"
	"github.com/fraudrules/fraudrules/internal/ml"
	"github.com/fraudrules/fraudrules/internal/rules"
	"github.com/fraudrules/fraudrules/internal/worker"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("FRAUDRULES_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting fraudrules", "version", Version, "commit", Commit, "build_date", BuildDate)

	cfg := domain.DefaultConfig()
	if os.Getenv("FRAUDRULES_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in pro tier mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	historyStore, err := history.New(cfg.History)
	if err != nil {
		slog.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer historyStore.Close()
	slog.Info("history store initialized", "backend", cfg.History.Backend)

	modelCache := ml.NewCache(cfg.ML.ModelConfigDir)
	scorer := ml.NewScorer(modelCache, logger)
	slog.Info("ml scorer initialized", "model_dir", cfg.ML.ModelConfigDir)

	factory := rules.NewFactory(historyStore, scorer, logger)

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	dispatchDirector := director.New(eventBus, director.Config{
		RequestTopic: cfg.EventBus.RequestTopic,
	}, logger)

	pool := worker.NewPool(eventBus, historyStore, factory, logger)
	if err := pool.Start(ctx, worker.Config{
		Concurrency:   5,
		RequestTopic:  cfg.EventBus.RequestTopic,
		ResponseTopic: cfg.EventBus.ResponseTopic,
	}); err != nil {
		slog.Error("failed to start rule worker pool", "error", err)
		os.Exit(1)
	}
	slog.Info("rule worker pool started")

	srv := httpapi.NewServer(cfg.Server, dispatchDirector, historyStore, eventBus, Version)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudrules is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := pool.Stop(); err != nil {
		slog.Error("failed to stop rule worker pool", "error", err)
	}
	dispatchDirector.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudrules shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  fraudrules")
	fmt.Println("  distributed rules engine")
	fmt.Println()
	fmt.Printf("  version: %s\n", version)
	fmt.Printf("  tier:    %s\n", cfg.Tier)
	fmt.Printf("  server:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
}
