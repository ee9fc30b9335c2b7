package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/halpertj/perp_sentry/internal/advisor"
	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/dashboard"
	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/heartbeat"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/llm"
	"github.com/halpertj/perp_sentry/internal/notify"
	"github.com/halpertj/perp_sentry/internal/retry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; explicit environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[SENTRY] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("Starting position sentry in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("🏳️ PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("💰 LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	if !cfg.HeartbeatEnabled() {
		logger.Println("Heartbeat is disabled in config, nothing to do")
		return
	}

	// Gateway: REST client behind a circuit breaker, orders behind the
	// single-retry dispatcher.
	rest := exchange.NewRestClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey, cfg.Exchange.AccountID).
		WithTickSize(cfg.Exchange.PriceTickSize)
	gateway := exchange.NewBreakerClient(rest, rest)
	dispatcher := retry.NewDispatcher(gateway, logger)

	jrnl, err := journal.NewJournal(cfg.Journal.Path)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}

	var notifier notify.Notifier
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, logger)
		if err != nil {
			log.Fatalf("Failed to create telegram notifier: %v", err)
		}
		notifier = tg
		logger.Println("Telegram notifications enabled")
	} else {
		notifier = &notify.LogNotifier{Logger: logger}
		logger.Println("No telegram credentials, notifications go to the log")
	}

	snapshotter := heartbeat.NewSnapshotter(gateway)
	supervisor := heartbeat.NewSupervisor(gateway, snapshotter, dispatcher, jrnl, notifier, logger, cfg)

	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	orchestrator := advisor.NewOrchestrator(llmClient, dispatcher, jrnl, notifier,
		supervisor.Limiter(), supervisor, logger, advisor.Config{
			Temperature:         cfg.LLM.Temperature,
			MaxTokens:           cfg.Heartbeat.Advisor.MaxTokens,
			MinPositionNotional: cfg.Exchange.MinPositionNotional,
			MaxEntriesPerDay:    cfg.Risk.MaxEntriesPerDay,
			NotifyEnabled:       cfg.NotifyEnabled(),
		})
	supervisor.SetAdvisor(orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		dashLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		dash = dashboard.NewServer(dashboard.Config{Addr: cfg.Dashboard.Addr},
			supervisor, supervisor.Limiter(), jrnl, gateway, dashLogger)
		go func() {
			if err := dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("Dashboard server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping sentry...")
		cancel()
	}()

	if err := supervisor.Run(ctx); err != nil {
		logger.Fatalf("Supervisor error: %v", err)
	}

	if dash != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Dashboard shutdown error: %v", err)
		}
	}

	logger.Println("Sentry stopped successfully")
}
