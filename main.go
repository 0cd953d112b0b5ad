package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pyramidbot/config"
	"pyramidbot/internal/adapters/binanceclient"
	"pyramidbot/internal/adapters/logger"
	"pyramidbot/internal/adapters/sqlitestore"
	"pyramidbot/internal/adapters/telegram"
	"pyramidbot/internal/engine"
	"pyramidbot/internal/ports"
	"pyramidbot/internal/server"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	ctx := context.Background()
	appLogger.Info(ctx, "Configuration loaded", map[string]interface{}{
		"port":       cfg.Port,
		"isTestnet":  cfg.IsTestnet,
		"quoteAsset": cfg.QuoteAsset,
		"dbPath":     cfg.DBPath,
	})

	// --- State Store ---
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize state store", map[string]interface{}{"dbPath": cfg.DBPath})
		os.Exit(1)
	}
	defer store.Close()

	// --- Notifier ---
	var notifier ports.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = telegram.New(cfg.TelegramToken, cfg.TelegramChatID, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			os.Exit(1)
		}
		appLogger.Info(ctx, "Telegram notifier initialized", map[string]interface{}{"chatID": cfg.TelegramChatID})
	} else {
		notifier = &telegram.LogNotifier{Logger: appLogger}
		appLogger.Info(ctx, "TELEGRAM_BOT_TOKEN not set, alerts will be logged only")
	}

	// --- Reconciliation Engine ---
	eng, err := engine.New(engine.Config{
		QuoteAsset:  cfg.QuoteAsset,
		SettleDelay: cfg.SettleDelay,
	}, store, notifier, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine")
		os.Exit(1)
	}

	// --- Exchange Client Factory ---
	// Credentials arrive per-signal, so only the environment flag is
	// fixed at startup.
	factory := &binanceclient.Factory{
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	}

	// --- HTTP Server ---
	srv, err := server.New(eng, factory, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize server")
		os.Exit(1)
	}

	// --- Graceful Shutdown Handling ---
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	appLogger.Info(ctx, "Starting webhook server", map[string]interface{}{"addr": addr})
	if err := srv.Run(runCtx, addr); err != nil {
		appLogger.Error(ctx, err, "Server exited with error")
		os.Exit(1)
	}
	appLogger.Info(ctx, "Shutdown complete")
}
