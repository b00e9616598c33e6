// sweep runs one valuation pass over every active pool and exits. Useful
// from cron or for ad-hoc reconciliation after an engine incident.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"babylon-funds/internal/config"
	"babylon-funds/internal/pricing"
	"babylon-funds/internal/storage"
	chstore "babylon-funds/internal/storage/clickhouse"
	"babylon-funds/internal/storage/migrations"
	pgstore "babylon-funds/internal/storage/postgres"
	"babylon-funds/internal/valuation"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	envFile := flag.String("env-file", "", "Optional .env file with connection strings")
	poolID := flag.String("pool-id", "", "Sweep a single pool instead of the whole fleet")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env file: %v", err)
		}
	}

	cfg, err := config.LoadWithEnvOverrides(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Storage.PostgresDSN == "" {
		log.Fatal("storage.postgresDSN is required for a one-shot sweep")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	var snapshots storage.SnapshotStore
	if cfg.Storage.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatal("run clickhouse migrations", zap.Error(err))
		}
		defer chConn.Close()
		snapshots = chstore.NewSnapshotStore(chConn)
	}

	engineClient := pricing.NewHTTPClient(cfg.Engine.HTTPURL,
		pricing.WithTimeout(cfg.Engine.Timeout),
		pricing.WithMaxRetries(cfg.Engine.MaxRetries),
	)

	svc := valuation.New(valuation.Options{
		TxManager: pool,
		Engine:    engineClient,
		Odds:      engineClient,
		Snapshots: snapshots,
		Logger:    logger.Named("valuation"),
	})

	if *poolID != "" {
		err = svc.UpdatePoolPerformance(ctx, *poolID)
	} else {
		err = svc.UpdateAllPools(ctx)
	}
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		os.Exit(1)
	}
}
