package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/config"
	"github.com/arsenic-art/DreamFundr/internal/db"
	apphttp "github.com/arsenic-art/DreamFundr/internal/http"
	"github.com/arsenic-art/DreamFundr/internal/idempotency"
	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
	"github.com/arsenic-art/DreamFundr/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(gdb, logger); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := storage.FromConfig(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("archive: %v", err)
	}
	logger.Info("anomaly archive ready", "driver", archive.Driver)

	var idem *idempotency.Store
	if cfg.Idempotency.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Idempotency.Path), 0o755); err != nil {
			log.Fatalf("idempotency: %v", err)
		}
		idem, err = idempotency.Open(cfg.Idempotency.Path, cfg.Idempotency.TTL)
		if err != nil {
			log.Fatalf("idempotency: %v", err)
		}
		defer idem.Close()
		go purgeLoop(ctx, idem, logger)
	}

	var provider payments.Provider
	switch cfg.Payments.Provider {
	case "mock":
		provider = payments.NewMockProvider(cfg.Payments.KeyID)
		logger.Warn("using mock payment provider")
	default:
		provider = payments.NewRazorpayProvider(cfg.Payments.KeyID, cfg.Payments.KeySecret)
	}
	verifier := payments.NewVerifier(cfg.Payments.KeySecret, cfg.Payments.WebhookSecret)

	anomalies := payments.NewAnomalyQueue(gdb, archive.Storage)
	anomalies.SetLogger(logger)
	engine := payments.NewSettlementEngine(gdb, anomalies)
	engine.SetLogger(logger)
	refunds := payments.NewRefundService(gdb, anomalies)
	refunds.SetLogger(logger)

	campaignRepo := campaigns.NewRepo(gdb)
	orders := payments.NewOrderService(campaignRepo, provider, payments.OrderOptions{
		Currency:  cfg.Payments.Currency,
		MaxAmount: cfg.Payments.MaxAmount,
		Timeout:   cfg.Payments.ProcessorTimeout,
	})
	orders.SetLogger(logger)
	confirm := payments.NewConfirmationService(verifier, provider, engine, payments.ConfirmOptions{
		ProcessorTimeout: cfg.Payments.ProcessorTimeout,
		SettleTimeout:    cfg.Payments.SettleTimeout,
	})
	confirm.SetLogger(logger)
	webhooks := payments.NewWebhookService(gdb, provider.Name(), verifier, engine, refunds)
	webhooks.SetLogger(logger)
	webhooks.SetOrderLookup(provider)

	r := apphttp.NewRouter(logger, apphttp.Deps{
		DB:            gdb,
		Campaigns:     campaignRepo,
		Currency:      cfg.Payments.Currency,
		Orders:        orders,
		Confirmations: confirm,
		Webhooks:      webhooks,
		Anomalies:     anomalies,
		Engine:        engine,
		Ledger:        payments.NewLedger(gdb),
		Idempotency:   idem,
		CookieName:    cfg.Session.CookieName,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// in-flight settlements run detached from the request but must finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Payments.SettleTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func purgeLoop(ctx context.Context, s *idempotency.Store, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge()
			if err != nil {
				logger.Warn("idempotency purge failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("idempotency keys purged", "count", n)
			}
		}
	}
}
