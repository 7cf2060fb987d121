package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dolgi/internal/amqp"
	"dolgi/internal/cli"
	"dolgi/internal/services"
	"dolgi/internal/settlement"
	"dolgi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting dolgi-settler")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The settler is driven by the broker; without AMQP there is nothing
	// to consume.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRequestQueue, cfg.AMQPResultQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	engine := settlement.NewEngine(repo, cfg.DefaultCurrency)
	settleSvc := services.NewSettlementService(engine, amqpClient, nil)
	settleWorker := worker.NewSettleWorker(settleSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Settle anything left over from downtime before consuming requests.
	if err := settleWorker.CheckOutstanding(ctx); err != nil {
		logger.Error("Startup settlement check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeSettlementRequests(gctx, func(msg *amqp.SettlementRequestMessage) error {
			return settleWorker.HandleSettlementRequest(gctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SettleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := settleWorker.CheckOutstanding(gctx); err != nil {
					logger.Error("Periodic settlement check failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Settler terminated", "error", err)
		os.Exit(1)
	}

	logger.Info("Settler stopped gracefully")
}
