package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gomultibridge/backend"
	"gomultibridge/backend/relaybridge"
	"gomultibridge/backend/routed"
	"gomultibridge/backend/settlement"
	"gomultibridge/config"
	"gomultibridge/diagnostics"
	"gomultibridge/engine"
	"gomultibridge/estimate"
	"gomultibridge/evmrpc"
	"gomultibridge/fees"
	"gomultibridge/logger"
	"gomultibridge/metrics"
	"gomultibridge/prices"
	"gomultibridge/redis"
	"gomultibridge/registry"
	"gomultibridge/signer"
	"gomultibridge/storage"
	"gomultibridge/submission"
	"gomultibridge/tracking"
	"gomultibridge/workers"
	"gomultibridge/workers/handlers"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	config.Init()

	log := logger.NewZapLogger(config.Config.Log.Level)
	if z, ok := log.(*logger.ZapLogger); ok {
		defer z.Sync()
	}
	log.Info("starting transfer engine", map[string]any{"storage": config.Config.Server.Storage})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &config.Config, log); err != nil {
		log.Error("transfer engine failed", map[string]any{"error": err})
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Configuration, log logger.Logger) (storage.TransferStore, error) {
	if cfg.Server.Storage == "file" {
		s, err := storage.NewFileStore(cfg.Server.StoragePath, log)
		if err != nil {
			return nil, fmt.Errorf("cannot open file store: %w", err)
		}
		return s, nil
	}
	// without persistence do not continue
	s, err := redis.New(redis.Init(), log)
	if err != nil {
		return nil, fmt.Errorf("cannot open redis store: %w", err)
	}
	go workers.Worker_watchStore(ctx, s, log)
	return s, nil
}

func run(ctx context.Context, cfg *config.Configuration, log logger.Logger) error {
	rec := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return err
	}
	table, err := prices.NewTable(cfg.Prices)
	if err != nil {
		return err
	}

	relayClient := relaybridge.NewRPCClient(cfg.Backends.RelayBridge.Endpoint, cfg.Backends.RelayBridge.Timeout)
	readers := fees.Router{
		EVM:   evmrpc.NewReader(evmrpc.DialEthclient, log),
		Other: relaybridge.Reader{Client: relayClient},
	}

	backends := backend.Set{
		backend.RelayBridge: relaybridge.New(relayClient, reg, cfg.Backends.RelayBridge.ExplorerURL, log),
		backend.RoutedMessaging: routed.New(
			routed.NewRPCClient(cfg.Backends.Routed.Endpoint, cfg.Backends.Routed.Timeout),
			reg, cfg.Backends.Routed.ExplorerURL, log),
		backend.SettlementSwap: settlement.New(
			settlement.NewHTTPClient(cfg.Backends.Settlement.Endpoint, cfg.Backends.Settlement.Timeout),
			reg, readers, cfg.Backends.Settlement.ExplorerURL, log),
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	sgn, err := signer.NewKeyedSigner(cfg.Signer.PrivateKey)
	if err != nil {
		return fmt.Errorf("cannot load signer key: %w", err)
	}
	reporter := diagnostics.NewLogReporter(log, rec)

	machine := submission.New(reg, backends, store, sgn,
		submission.WithLogger(log),
		submission.WithMetrics(rec),
		submission.WithReporter(reporter),
		submission.WithAckTimeout(cfg.Tracking.AckTimeout),
	)
	reconciler := tracking.New(store, backends,
		tracking.WithLogger(log),
		tracking.WithMetrics(rec),
		tracking.WithReporter(reporter),
		tracking.WithInterval(cfg.Tracking.PollInterval),
		tracking.WithMaxAge(cfg.Tracking.MaxAge),
	)
	eng := engine.New(
		reg,
		fees.NewAggregator(reg, backends, readers, table, log, rec),
		estimate.New(reg, backends),
		machine,
		store,
		reconciler,
	)

	go workers.Worker_tracking(ctx, eng, log)

	api := handlers.NewAPI(eng, reg, readers, log)
	return workers.Worker_HTTP(ctx, cfg, workers.NewRouter(api, nil), log)
}
