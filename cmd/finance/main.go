package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"karting-finance/internal/cache"
	"karting-finance/internal/config"
	"karting-finance/internal/dashboard"
	"karting-finance/internal/payments"
	"karting-finance/internal/paysync"
	"karting-finance/internal/repository"
	"karting-finance/internal/server"
	"karting-finance/internal/sheets"
	"karting-finance/internal/store"
	"karting-finance/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	gateway, err := payments.NewGateway(cfg)
	if err != nil {
		log.Fatalf("payments: %v", err)
	}

	syncer := paysync.New(st, gateway, logger)
	svc := dashboard.New(st, syncer, logger)

	var notifier server.Notifier
	var botApp *tgbot.App
	if cfg.TelegramToken != "" {
		botApp, err = tgbot.New(cfg, svc, gateway, logger)
		if err != nil {
			log.Fatalf("telegram: %v", err)
		}
		notifier = botApp
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN is empty, bot disabled")
	}

	httpSrv := server.NewServer(cfg, svc, gateway, notifier, logger)

	// Start HTTP server
	go func() {
		if err := httpSrv.Run(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Start Telegram
	if botApp != nil {
		go func() {
			if err := botApp.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("bot stopped", "err", err)
			}
		}()
	}

	var worker *paysync.Worker
	if cfg.SyncInterval > 0 {
		worker = paysync.NewWorker(syncer, st, cfg.SyncChampionshipIDs, cfg.SyncInterval, logger)
		worker.Start()
		logger.Info("payment sync worker started", "interval", cfg.SyncInterval)
	}

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	if worker != nil {
		worker.Stop()
	}
	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := httpSrv.Shutdown(ctxTimeout); err != nil {
		logger.Error("http shutdown", "err", err)
	}

	logger.Info("bye")
}

// openStore builds the configured backend, wrapped in the Redis cache when
// REDIS_URL is set.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.StoreBackend {
	case "sheets":
		c, err := sheets.New(cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID, logger)
		if err != nil {
			return nil, fmt.Errorf("sheets: %w", err)
		}
		st = c
	case "postgres":
		r, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st = r
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	if cfg.RedisAddr == "" {
		return st, nil
	}
	opts := cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	}
	rdb := cache.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		st.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info("redis cache enabled", "addr", cfg.RedisAddr, "ttl", opts.TTL)
	return cache.New(st, rdb, opts.TTL, logger), nil
}
