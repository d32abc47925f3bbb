package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-logfilter/internal/jsonrpc"
	"github.com/ava-labs/avalanche-logfilter/pkg/clickhouse"
	"github.com/ava-labs/avalanche-logfilter/pkg/data/clickhouse/logsrepo"
	"github.com/ava-labs/avalanche-logfilter/pkg/ingest"
	"github.com/ava-labs/avalanche-logfilter/pkg/kafka"
	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
	"github.com/ava-labs/avalanche-logfilter/pkg/query"
	"github.com/ava-labs/avalanche-logfilter/pkg/registry"
	"github.com/ava-labs/avalanche-logfilter/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"dataDir", cfg.Store.DataDir,
		"cacheSize", cfg.Store.CacheSize,
		"sync", cfg.Store.Sync,
		"rpcAddr", cfg.RPC.Addr,
		"rpcUnsafeCORS", cfg.RPC.UnsafeCORS,
		"filterTimeout", cfg.Registry.Timeout,
		"filterReapInterval", cfg.Registry.ReapInterval,
		"maxFilters", cfg.Registry.MaxFilters,
		"maxConcurrentQueries", cfg.Query.MaxConcurrentQueries,
		"maxBlockRange", cfg.Query.Limits.MaxBlockRange,
		"maxLogs", cfg.Query.Limits.MaxLogs,
		"kafkaEnabled", cfg.Kafka.Enabled(),
		"kafkaTopic", cfg.Kafka.Topic,
		"kafkaGroupID", cfg.Kafka.GroupID,
		"clickhouseEnabled", cfg.ClickHouseEnabled,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseLogsTable", cfg.ClickHouse.LogsTable,
		"watchdogInterval", cfg.WatchdogInterval,
		"watchdogMaxIdle", cfg.WatchdogMaxIdle,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"evmChainID", cfg.EVMChainID,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics with labels for multi-instance filtering
	promRegistry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(promRegistry, metrics.Labels{
		EVMChainID:    cfg.EVMChainID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := logstore.OpenPebble(cfg.Store, sugar)
	if err != nil {
		return fmt.Errorf("failed to open log store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			sugar.Warnw("failed to close log store", "error", err)
		}
	}()
	if head, ok := store.Head(); ok {
		m.SetHead(head)
		sugar.Infof("log store head: %d", head)
	} else {
		sugar.Info("log store is empty")
	}

	var sinks []ingest.Sink
	if cfg.ClickHouseEnabled {
		chClient, err := clickhouse.New(cfg.ClickHouse, sugar)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		defer chClient.Close()

		logsRepo, err := logsrepo.NewLogs(ctx, chClient, cfg.ClickHouse.LogsTable)
		if err != nil {
			return fmt.Errorf("failed to create logs repository: %w", err)
		}
		sugar.Infow("ClickHouse logs table ready", "tableName", cfg.ClickHouse.LogsTable)
		sinks = append(sinks, logsRepo)
	}

	ingestor := ingest.New(store, sugar, m, sinks...)

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), promRegistry, ingestor.Err)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	filterRegistry := registry.New(cfg.Registry, m)
	svc, err := query.New(cfg.Query, store, filterRegistry, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create query service: %w", err)
	}

	rpcServer, err := jsonrpc.NewServer(cfg.RPC, jsonrpc.NewFilterAPI(svc), sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create JSON-RPC server: %w", err)
	}
	rpcErrCh, err := rpcServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start JSON-RPC server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Kafka.Enabled() {
		source, err := kafka.NewBlockSource(sugar, cfg.Kafka, ingestor, m)
		if err != nil {
			return fmt.Errorf("failed to create kafka block source: %w", err)
		}
		g.Go(func() error {
			return source.Run(gctx)
		})
	} else {
		sugar.Warn("kafka bootstrap servers not set, no blocks will be ingested")
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-rpcErrCh:
			if err != nil {
				return fmt.Errorf("json-rpc server failed: %w", err)
			}
			return nil
		}
	})

	go registry.StartReaper(gctx, sugar, filterRegistry, cfg.Registry.ReapInterval)
	go ingest.StartStallWatchdog(gctx, sugar, ingestor, cfg.WatchdogInterval, cfg.WatchdogMaxIdle)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sugar.Info("shutting down JSON-RPC server")
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("json-rpc server shutdown error", "error", err)
	}

	sugar.Info("shutting down metrics server")
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}
