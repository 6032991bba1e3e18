package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/config"
	"github.com/sovrana/trading-engine/internal/eventbus"
	"github.com/sovrana/trading-engine/internal/exchange"
	"github.com/sovrana/trading-engine/internal/executor"
	"github.com/sovrana/trading-engine/internal/marketdata"
	"github.com/sovrana/trading-engine/internal/pipeline"
	"github.com/sovrana/trading-engine/internal/reconciler"
	"github.com/sovrana/trading-engine/internal/risk"
	"github.com/sovrana/trading-engine/internal/server"
	"github.com/sovrana/trading-engine/internal/signals"
	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/strategies"
	"github.com/sovrana/trading-engine/internal/wallet"
)

func main() {
	// Setup logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	log.Info().Msg("Starting Trading Engine...")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Setup storage
	store, err := storage.NewPostgres(cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	// Shared Redis client backs both the market-data cache and the event bus
	cache := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
	})
	defer cache.Close()

	bus, err := eventbus.NewRedisEventBus(cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	markets := marketdata.NewClient(cache, cfg.IngestionURL)
	wallets := wallet.NewManager(cfg.VaultAddr, cfg.VaultToken)
	clob := exchange.NewClient(cfg.ClobAPIBase, cfg.ChainID)

	riskEngine := risk.NewEngine(store, markets, cfg.GlobalKillSwitch)
	exec := executor.NewExecutor(store, wallets, clob)
	pipe := pipeline.New(riskEngine, exec)

	// Register strategy templates
	strategies.RegisterAll()

	generator := signals.NewGenerator(
		store, markets, bus, pipe,
		time.Duration(cfg.EvalInterval)*time.Second,
		cfg.MarketsPerCycle,
		cfg.ActiveMarketsLimit,
	)
	recon := reconciler.NewReconciler(
		store, markets, markets,
		time.Duration(cfg.ReconcileInterval)*time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		generator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		recon.Run(ctx)
	}()

	// HTTP boundary
	gin.SetMode(gin.ReleaseMode)
	api := server.New(store, pipe, cfg.APIKey)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Msg("Trading Engine started")

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	wg.Wait()
	log.Info().Msg("Trading Engine stopped")
}
