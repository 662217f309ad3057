package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/aggregator"
	"github.com/nimazeighami/dust-zap-engine/internal/balances"
	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/fees"
	"github.com/nimazeighami/dust-zap-engine/internal/intents"
	"github.com/nimazeighami/dust-zap-engine/internal/pricing"
	"github.com/nimazeighami/dust-zap-engine/internal/server"
	"github.com/nimazeighami/dust-zap-engine/internal/stream"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := configs.ParseConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	selector := aggregator.NewSelector(log,
		aggregator.NewOneInch(cfg.OneInchBaseURL, cfg.OneInchAPIKey),
		aggregator.NewParaswap(cfg.ParaswapBaseURL),
		aggregator.NewZeroX(cfg.ZeroXBaseURL, cfg.ZeroXAPIKey),
	)

	store := intents.NewManager(cfg.ConnectionTimeout, cfg.CleanupInterval, cfg.MaxContexts, log)
	defer store.Close()

	handler := intents.NewDustZapHandler(cfg,
		pricing.NewClient(cfg.PriceAPIURL),
		balances.NewClient(cfg.BalanceAPIURL),
		store, log)

	registry := intents.NewRegistry()
	registry.Register(intents.IntentTypeDustZap, handler)

	pipeline := stream.NewPipeline(
		stream.NewProcessor(selector, log),
		fees.NewCalculator(cfg.PlatformFeeRate, cfg.ReferrerFeeShare, cfg.TreasuryAddress),
		cfg.HeartbeatInterval,
		log,
	)

	srv := server.New(cfg, registry, store, pipeline, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
		// No global write timeout: SSE connections stay open up to the
		// intent connection timeout.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("dust-zap engine listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown was not clean")
	}
}
