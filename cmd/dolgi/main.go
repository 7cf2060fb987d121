package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dolgi/internal/amqp"
	"dolgi/internal/cache"
	"dolgi/internal/cli"
	"dolgi/internal/core"
	apphttp "dolgi/internal/http"
	"dolgi/internal/services"
	"dolgi/internal/settlement"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// AMQP is optional for the API process: without a broker, settlement
	// requests degrade to a warning and synchronous plan/commit still works.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRequestQueue, cfg.AMQPResultQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, async settlement disabled", "error", err)
		} else {
			defer amqpClient.Close()
		}
	}

	balances := cache.NewLRUCache[[]core.Balance](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(balances)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	ledgerSvc := services.NewLedgerService(repo, amqpClient, balances, cfg.DefaultCurrency, cfg.HistoryLimit)
	engine := settlement.NewEngine(repo, cfg.DefaultCurrency)
	settleSvc := services.NewSettlementService(engine, amqpClient, balances.Purge)

	srv := apphttp.NewServer(":"+cfg.Port, ledgerSvc, settleSvc, repo)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting dolgi server",
		"port", cfg.Port,
		"db_path", cfg.SQLiteDBPath,
		"default_currency", cfg.DefaultCurrency)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
