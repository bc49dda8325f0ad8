package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alejandrodnm/polywatch/config"
	"github.com/alejandrodnm/polywatch/internal/adapters/notify"
	"github.com/alejandrodnm/polywatch/internal/adapters/polymarket"
	"github.com/alejandrodnm/polywatch/internal/adapters/storage"
	"github.com/alejandrodnm/polywatch/internal/adapters/venues"
	"github.com/alejandrodnm/polywatch/internal/books"
	"github.com/alejandrodnm/polywatch/internal/discovery"
	"github.com/alejandrodnm/polywatch/internal/divergence"
	"github.com/alejandrodnm/polywatch/internal/feed"
	"github.com/alejandrodnm/polywatch/internal/invariant"
	"github.com/alejandrodnm/polywatch/internal/strategy"
	"github.com/alejandrodnm/polywatch/internal/verify"
	"github.com/alejandrodnm/polywatch/internal/watcher"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one full cycle and exit")
	dryRun := flag.Bool("dry-run", false, "run without persistence")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full status tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polywatch starting",
		"config", *configPath,
		"assets", cfg.Watcher.Assets,
		"dry_run", *dryRun,
		"once", *once,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.DataBase)
	venueClient := venues.New(cfg.Venues.Enabled)

	var store *storage.SQLiteStorage
	if !*dryRun {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	disc := buildDiscovery(cfg, client)
	ingestor := buildIngestor(cfg, venueClient, store)
	collector := buildCollector(cfg, client, store)
	tracker := divergence.New(divergence.Config{
		AlignedPct: cfg.Divergence.AlignedPct,
		BreachPct:  cfg.Divergence.BreachPct,
	})
	engine := buildEngine(cfg, ingestor, collector, tracker, store)
	verifier := verify.New(verify.Config{
		Live:         cfg.Verify.Live,
		Address:      cfg.Verify.Address,
		Timeout:      cfg.VerifyTimeout(),
		CacheTTL:     cfg.VerifyCacheTTL(),
		FailOnOrphan: cfg.Verify.FailOnOrphan,
	}, client)
	checker := buildChecker(cfg, engine, store)
	notifier := notify.NewConsole(*table)

	watcherCfg := watcher.DefaultConfig()
	watcherCfg.Assets = cfg.Watcher.Assets
	watcherCfg.CycleInterval = cfg.CycleInterval()
	watcherCfg.StatusInterval = cfg.StatusInterval()
	watcherCfg.Once = *once
	if len(cfg.Venues.Enabled) > 0 {
		watcherCfg.PrimaryVenue = cfg.Venues.Enabled[0]
	}

	w := watcher.New(watcherCfg, disc, ingestor, collector, tracker, engine, verifier, checker, notifier)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		slog.Error("watcher exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polywatch stopped cleanly")
}

func buildDiscovery(cfg *config.Config, client *polymarket.Client) *discovery.Discovery {
	dc := discovery.DefaultConfig()
	dc.Assets = cfg.Watcher.Assets
	dc.TTL = cfg.DiscoveryTTL()
	dc.SlugTemplate = cfg.API.SlugTemplate
	return discovery.New(dc, client)
}

func buildIngestor(cfg *config.Config, venueClient *venues.Client, store *storage.SQLiteStorage) *feed.Ingestor {
	fc := feed.DefaultConfig()
	fc.Assets = cfg.Watcher.Assets
	fc.Interval = cfg.FeedInterval()
	fc.FlushInterval = cfg.FeedFlushInterval()
	fc.BatchSize = cfg.Feed.BatchSize
	fc.BufferCap = cfg.Feed.BufferCap
	fc.Retention = cfg.FeedRetention()
	fc.MaxConcurrent = int64(cfg.Feed.MaxConcurrent)
	if store == nil {
		return feed.New(fc, venueClient, nil)
	}
	return feed.New(fc, venueClient, store)
}

func buildCollector(cfg *config.Config, client *polymarket.Client, store *storage.SQLiteStorage) *books.Collector {
	bc := books.DefaultConfig()
	bc.Interval = cfg.BooksInterval()
	bc.MaxConcurrent = int64(cfg.Books.MaxConcurrent)
	bc.MaxLevels = cfg.Books.MaxLevels
	if store == nil {
		return books.New(bc, client, nil)
	}
	return books.New(bc, client, store)
}

func buildEngine(cfg *config.Config, ingestor *feed.Ingestor, collector *books.Collector, tracker *divergence.Tracker, store *storage.SQLiteStorage) *strategy.Engine {
	ec := strategy.DefaultConfig()
	ec.SignalOffset = cfg.SignalOffset()
	ec.OrderSize = cfg.Strategy.OrderSize
	ec.FeeRate = cfg.Strategy.FeeRate
	ec.Bankroll = cfg.Strategy.Bankroll
	ec.MaxOpenTrades = cfg.Strategy.MaxOpenTrades

	registry := strategy.NewRegistry(cfg.Watcher.Assets)
	if store == nil {
		return strategy.New(ec, registry, ingestor, collector, tracker, nil)
	}
	engine := strategy.New(ec, registry, ingestor, collector, tracker, store)
	engine.UseTickHistory(store)
	return engine
}

func buildChecker(cfg *config.Config, engine *strategy.Engine, store *storage.SQLiteStorage) *invariant.Checker {
	ic := invariant.DefaultConfig()
	ic.Interval = cfg.InvariantInterval()
	ic.HeartbeatMaxAge = cfg.HeartbeatMaxAge()
	ic.MaxCapital = cfg.Invariant.MaxCapital
	ic.MaxOpenTrades = cfg.Strategy.MaxOpenTrades
	ic.InitialBankroll = cfg.Strategy.Bankroll
	ic.Assets = cfg.Watcher.Assets

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "invariants",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	if store == nil {
		return invariant.New(ic, engine, breaker, nil)
	}
	return invariant.New(ic, engine, breaker, store)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
