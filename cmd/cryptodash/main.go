package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/cryptodash/internal/chart"
	"github.com/rewired-gh/cryptodash/internal/coingecko"
	"github.com/rewired-gh/cryptodash/internal/config"
	"github.com/rewired-gh/cryptodash/internal/dashboard"
	"github.com/rewired-gh/cryptodash/internal/fallback"
	"github.com/rewired-gh/cryptodash/internal/logger"
	"github.com/rewired-gh/cryptodash/internal/metrics"
	"github.com/rewired-gh/cryptodash/internal/server"
	"github.com/rewired-gh/cryptodash/internal/storage"
	"github.com/rewired-gh/cryptodash/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Failed to load timezone: %v", err)
	}
	labels := chart.Labeler{Location: loc}

	store, err := storage.New(cfg.Storage.MaxCycles, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.RotateCycles(ctx); err != nil {
		logger.Warn("Failed to rotate cycle journal: %v", err)
	}

	m := metrics.New("")

	client := coingecko.NewClient(cfg.CoinGecko.BaseURL, coingecko.ClientConfig{
		Timeout:           cfg.CoinGecko.Timeout,
		RequestsPerMinute: cfg.CoinGecko.RequestsPerMinute,
		PerPage:           cfg.CoinGecko.PerPage,
		Observer:          m,
	})

	gen := fallback.NewGenerator(fallback.WithLabels(labels))
	normalizer := chart.NewNormalizer(labels, gen)

	opts := []dashboard.Option{
		dashboard.WithRecorder(store),
		dashboard.WithMetrics(m),
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		opts = append(opts, dashboard.WithNotifier(telegramClient))
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	coord := dashboard.New(client, normalizer, gen, dashboard.Config{
		DefaultCrypto:    cfg.Dashboard.DefaultCrypto,
		DefaultTimeframe: cfg.Dashboard.DefaultTimeframe,
		Timeframes:       config.Timeframes,
		RefreshInterval:  cfg.Dashboard.RefreshInterval,
		Retry: dashboard.RetryPolicy{
			MaxAttempts: cfg.Dashboard.RetryMaxAttempts,
			Delay:       cfg.Dashboard.RetryDelay,
		},
	}, opts...)

	srv := server.NewServer(server.Config{
		Addr:           cfg.Server.Addr,
		Cryptos:        cfg.Dashboard.Cryptos,
		Timeframes:     config.Timeframes,
		SupportsCrypto: cfg.SupportsCrypto,
	}, coord, server.WithCycles(store), server.WithMetrics(m.Handler()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, coord)
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("Web server failed: %v", err)
			cancel()
		}
	}()

	logger.Info("Starting dashboard (crypto: %s, timeframe: %dd, refresh: %v, retries: %d x %v)",
		cfg.Dashboard.DefaultCrypto,
		cfg.Dashboard.DefaultTimeframe,
		cfg.Dashboard.RefreshInterval,
		cfg.Dashboard.RetryMaxAttempts,
		cfg.Dashboard.RetryDelay,
	)

	if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Dashboard coordinator failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Web server shutdown: %v", err)
	}
	logger.Info("Service stopped")
}
