// Command tickcollector runs the real-time tick collection pipeline:
// it connects to the market-data feed, subscribes to the configured
// futures contracts, aggregates ticks into second bars, and persists them
// to the time-series store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/johnayoung/go-tick-collector/internal/collector"
	"github.com/johnayoung/go-tick-collector/internal/config"
	"github.com/johnayoung/go-tick-collector/internal/feed"
	"github.com/johnayoung/go-tick-collector/internal/logger"
	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to JSON configuration file")
		contracts  = flag.String("contracts", "", "comma-separated contract codes (overrides config)")
		duration   = flag.Duration("duration", 0, "run for a fixed duration then stop (0 = until signal)")
	)
	flag.Parse()

	if err := run(*configPath, *contracts, *duration); err != nil {
		fmt.Fprintf(os.Stderr, "tickcollector: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, contractsFlag string, duration time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logMgr, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logMgr.Close()
	log := logMgr.Component("main")

	store, err := buildStorage(cfg, logMgr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Initialize(ctx); err != nil {
		return err
	}
	defer store.Close()

	fallback := storage.NewFallbackWriter(cfg.Storage.FallbackDir, logMgr.Component("fallback"))

	tickFeed := feed.NewSimulatedFeed(feed.DefaultSimConfig())

	cycleInterval, _ := cfg.CycleInterval()
	connectTimeout, _ := cfg.ConnectTimeout()

	collectorCfg := collector.DefaultConfig()
	collectorCfg.BufferCeiling = cfg.Collector.BufferCeiling
	collectorCfg.FlushThreshold = cfg.Collector.FlushThreshold
	collectorCfg.CycleInterval = cycleInterval
	collectorCfg.RawTickAudit = cfg.Collector.RawTickAudit
	collectorCfg.ConnectTimeout = connectTimeout
	collectorCfg.ConnectRetries = cfg.Feed.MaxRetries
	collectorCfg.Timezone = cfg.Collector.Timezone
	collectorCfg.Logger = logMgr.Component("collector")

	var tickStore storage.TickStorer
	if cfg.Collector.RawTickAudit {
		tickStore = store
	}

	coll := collector.New(tickFeed, store, tickStore, fallback, collectorCfg)

	codes := resolveContracts(cfg, contractsFlag)
	if len(codes) == 0 {
		return fmt.Errorf("no contracts to collect")
	}
	log.Info("starting tick collector",
		"contracts", codes,
		"storage", cfg.Storage.Type,
		"db_path", filepath.Clean(cfg.Storage.DatabasePath))

	if err := coll.Connect(ctx); err != nil {
		return err
	}
	if err := coll.Start(ctx, codes); err != nil {
		return err
	}

	if duration > 0 {
		select {
		case <-time.After(duration):
		case <-ctx.Done():
		}
	} else {
		<-ctx.Done()
	}

	// Drain with a fresh context: the signal context is already done.
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := coll.Stop(stopCtx); err != nil {
		log.Error("stop failed", "error", err)
	}
	if err := coll.Disconnect(stopCtx); err != nil {
		log.Warn("disconnect failed", "error", err)
	}

	stats := coll.Stats()
	log.Info("collection summary",
		"ticks_received", stats.TicksReceived,
		"seconds_aggregated", stats.SecondsAggregated,
		"bars_flushed", stats.BarsFlushed,
		"fallback_batches", stats.FallbackBatches,
		"ticks_per_second", fmt.Sprintf("%.1f", stats.TicksPerSecond),
		"uptime", stats.Uptime.Round(time.Second))

	return nil
}

// buildStorage constructs the configured storage backend.
func buildStorage(cfg *config.AppConfig, logMgr *logger.Manager) (storage.FullStorage, error) {
	switch cfg.Storage.Type {
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return storage.NewDuckDBStorage(cfg.Storage.DatabasePath, cfg.Storage.BarTable, logMgr.Component("storage"))
	}
}

// resolveContracts picks the contract codes to collect: the -contracts
// flag wins, then the configured contract list, then quarterly codes
// generated from the configured instrument roots.
func resolveContracts(cfg *config.AppConfig, contractsFlag string) []string {
	if contractsFlag != "" {
		var codes []string
		for _, c := range strings.Split(contractsFlag, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, strings.ToUpper(c))
			}
		}
		return codes
	}
	if len(cfg.Collector.Contracts) > 0 {
		return cfg.Collector.Contracts
	}
	return market.GenerateContracts(cfg.Collector.Symbols, time.Now())
}
