// valuationd is the fund-accounting daemon. It sweeps every active pool on
// an interval and additionally revalues single pools when the live engine
// pushes position events over its websocket feed.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"babylon-funds/internal/config"
	"babylon-funds/internal/observability"
	"babylon-funds/internal/pricing"
	"babylon-funds/internal/storage"
	chstore "babylon-funds/internal/storage/clickhouse"
	"babylon-funds/internal/storage/memory"
	"babylon-funds/internal/storage/migrations"
	pgstore "babylon-funds/internal/storage/postgres"
	"babylon-funds/internal/valuation"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	envFile := flag.String("env-file", "", "Optional .env file with connection strings")
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

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// Storage backend
	var txm storage.TxManager
	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatal("run postgres migrations", zap.Error(err))
		}
		txm = pool
		logger.Info("using postgres storage")
	} else {
		txm = memory.NewStore()
		logger.Warn("no postgres DSN configured, using in-memory storage")
	}

	// NAV history backend
	var snapshots storage.SnapshotStore
	if cfg.Storage.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatal("run clickhouse migrations", zap.Error(err))
		}
		defer chConn.Close()
		snapshots = chstore.NewSnapshotStore(chConn)
		logger.Info("NAV snapshot history enabled")
	}

	engineClient := pricing.NewHTTPClient(cfg.Engine.HTTPURL,
		pricing.WithTimeout(cfg.Engine.Timeout),
		pricing.WithMaxRetries(cfg.Engine.MaxRetries),
	)

	metrics := observability.NewMetrics("")

	svc := valuation.New(valuation.Options{
		TxManager: txm,
		Engine:    engineClient,
		Odds:      engineClient,
		Snapshots: snapshots,
		Logger:    logger.Named("valuation"),
		Metrics:   metrics,
	})

	// Metrics endpoint
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: observability.Handler()}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	// Event-driven revaluation. Optional: the periodic sweep alone keeps
	// valuations fresh, the stream just tightens latency after fills.
	var events <-chan pricing.PositionEvent
	if cfg.Engine.WSURL != "" {
		stream, err := pricing.NewEventStream(ctx, cfg.Engine.WSURL, nil)
		if err != nil {
			logger.Warn("engine event stream unavailable, sweeps only", zap.Error(err))
		} else {
			defer stream.Close()
			events = stream.Events()
			logger.Info("subscribed to engine position events")
		}
	}

	logger.Info("valuationd started", zap.Duration("sweep_interval", cfg.Sweep.Interval))
	run(ctx, svc, cfg.Sweep.Interval, events, logger)
	logger.Info("valuationd stopped")
}

// run drives the sweep ticker and the event feed until ctx is cancelled.
func run(ctx context.Context, svc *valuation.Service, interval time.Duration, events <-chan pricing.PositionEvent, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sweep so a restart doesn't wait a full interval.
	if err := svc.UpdateAllPools(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("initial sweep failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.UpdateAllPools(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep failed", zap.Error(err))
			}
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := svc.UpdatePoolPerformance(ctx, evt.PoolID); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event-driven pool update failed",
					zap.String("pool_id", evt.PoolID),
					zap.String("position_id", evt.PositionID),
					zap.String("kind", evt.Kind),
					zap.Error(err))
			}
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
