package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/amezcua/tightbot/config"
	"github.com/amezcua/tightbot/internal/adapters/notify"
	"github.com/amezcua/tightbot/internal/adapters/polymarket"
	"github.com/amezcua/tightbot/internal/adapters/storage"
	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/engine"
	"github.com/amezcua/tightbot/internal/feed"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one discovery+evaluation pass and exit")
	dryRun := flag.Bool("dry-run", false, "log orders instead of placing them")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full status table (default: compact 1-line)")
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
	if *dryRun || *once {
		cfg.Executor.DryRun = true
	}
	log := setupLogger(cfg.Log)

	log.Info("tightbot starting",
		"config", *configPath,
		"assets", cfg.Strategy.Assets,
		"stake_usdc", cfg.Strategy.StakeUSDC,
		"max_daily_loss", cfg.Executor.MaxDailyLoss,
		"dry_run", cfg.Executor.DryRun,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, log)
	if err != nil {
		log.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, polymarket.Credentials{
		Address:    cfg.API.Address,
		APIKey:     cfg.API.APIKey,
		Secret:     cfg.API.Secret,
		Passphrase: cfg.API.Passphrase,
	}, log)
	finder := polymarket.NewMarketFinder(client, cfg.AssetList())
	clob := polymarket.NewCLOB(client)

	prices := feed.NewPriceFeed(feed.Config{
		WSURL:  cfg.API.RTDSWSURL,
		Assets: cfg.AssetList(),
	}, log)
	odds := feed.NewOddsTracker(feed.OddsConfig{
		WSURL:              cfg.API.MarketWS,
		TightnessThreshold: cfg.Strategy.TightnessThreshold,
	}, log)

	signals := engine.NewSignalEngine(engine.SignalConfig{
		Eval: domain.EvalConfig{
			MinSecondsRemaining: cfg.Strategy.MinSecondsRemaining,
			EntryWindow:         cfg.Strategy.EntryWindowSeconds,
			MinVolatility:       cfg.Strategy.MinVolatility,
			MinEdge:             cfg.Strategy.MinEdge,
			MinAsk:              cfg.Strategy.MinAsk,
		},
		VolatilityWindow: cfg.VolatilityWindow(),
		Stake:            cfg.Strategy.StakeUSDC,
	}, odds, prices, clob, log)

	executor := engine.NewExecutor(engine.ExecutorConfig{
		MaxDailyLoss:     cfg.Executor.MaxDailyLoss,
		FailLossFraction: cfg.Executor.FailLossFraction,
		DryRun:           cfg.Executor.DryRun,
	}, clob, store, log)

	notifier := notify.NewConsole(*table)

	coordinator := engine.NewCoordinator(engine.CoordinatorConfig{
		DiscoveryInterval: cfg.DiscoveryInterval(),
		EntryWindow:       cfg.EntryWindow(),
		ExecutionWindow:   cfg.ExecutionWindow(),
		VolatilityWindow:  cfg.VolatilityWindow(),
	}, finder, prices, odds, signals, executor, store, notifier, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go prices.Run(ctx)
	go odds.Run(ctx)

	if *once {
		coordinator.Tick(ctx)
		if stats, err := store.TradeStats(ctx); err == nil {
			notifier.TradeReport(ctx, stats)
		}
		log.Info("single pass done")
		return
	}

	if err := coordinator.Run(ctx); err != nil {
		log.Error("coordinator exited with error", "err", err)
		os.Exit(1)
	}

	if stats, err := store.TradeStats(context.Background()); err == nil {
		notifier.TradeReport(context.Background(), stats)
	}

	log.Info("tightbot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
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

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
