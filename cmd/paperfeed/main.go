// Command paperfeed runs the heartbeat against a simulated exchange and a
// scripted advisor. It exists to exercise the full pipeline end to end
// without credentials: seed a couple of positions, walk the marks, and watch
// the journal fill up.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halpertj/perp_sentry/internal/advisor"
	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/heartbeat"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/mock"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/notify"
	"github.com/halpertj/perp_sentry/internal/retry"
)

func main() {
	var (
		journalPath string
		seed        int64
		stepEvery   time.Duration
		volPct      float64
	)
	flag.StringVar(&journalPath, "journal", "paper_journal.json", "Journal file path")
	flag.Int64Var(&seed, "seed", 42, "Random walk seed")
	flag.DurationVar(&stepEvery, "step", 2*time.Second, "Mark price step interval")
	flag.Float64Var(&volPct, "vol", 0.5, "Random walk step size in percent")
	flag.Parse()

	logger := log.New(os.Stdout, "[PAPERFEED] ", log.LstdFlags)

	cfg := paperConfig(journalPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid paper config: %v", err)
	}

	paper := mock.NewPaperExchange(10000, seed)
	paper.OpenPosition("BTC-PERP", models.SideLong, 2000, 70000, 63000)
	paper.OpenPosition("ETH-PERP", models.SideShort, 1000, 3500, 3900)
	paper.SetFunding("BTC-PERP", 0.00004)
	paper.SetFunding("ETH-PERP", -0.00002)

	jrnl, err := journal.NewJournal(cfg.Journal.Path)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	_ = jrnl.SetThesis("BTC-PERP", "Long continuation after range break; invalid below 68k.")

	notifier := &notify.LogNotifier{Logger: logger}
	dispatcher := retry.NewDispatcher(paper, logger)
	snapshotter := heartbeat.NewSnapshotter(paper)
	supervisor := heartbeat.NewSupervisor(paper, snapshotter, dispatcher, jrnl, notifier, logger, cfg)

	// A scripted advisor stands in for the LLM endpoint: first a stop
	// tighten, then holds forever.
	scripted := mock.NewScriptedLLM(
		`{"action": "tighten_stop", "params": {"newStopPrice": 69000}, "reason": "protect the breakout level"}`,
	)
	orchestrator := advisor.NewOrchestrator(scripted, dispatcher, jrnl, notifier,
		supervisor.Limiter(), supervisor, logger, advisor.Config{
			Temperature:         cfg.LLM.Temperature,
			MaxTokens:           cfg.Heartbeat.Advisor.MaxTokens,
			MinPositionNotional: cfg.Exchange.MinPositionNotional,
			MaxEntriesPerDay:    cfg.Risk.MaxEntriesPerDay,
			NotifyEnabled:       true,
		})
	supervisor.SetAdvisor(orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Stopping paperfeed...")
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(stepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				paper.Step(volPct)
			}
		}
	}()

	logger.Printf("Paperfeed running (seed %d, step %v, vol %.2f%%)", seed, stepEvery, volPct)
	if err := supervisor.Run(ctx); err != nil {
		logger.Fatalf("Supervisor error: %v", err)
	}
	logger.Println("Paperfeed stopped")
}

// paperConfig builds an in-memory config tuned for a fast local run: short
// intervals, small volatility window, generous advisor budget.
func paperConfig(journalPath string) *config.Config {
	cfg := &config.Config{}
	cfg.Environment.Mode = "paper"
	cfg.Exchange.BaseURL = "paper://local"
	cfg.Exchange.AccountID = "paper"
	cfg.Exchange.MinPositionNotional = 50
	cfg.Heartbeat.TickIntervalSeconds = 5
	cfg.Heartbeat.SupervisorIntervalSeconds = 5
	cfg.Heartbeat.Triggers.VolatilitySpikeWindowTicks = 5
	cfg.Heartbeat.Triggers.TimeCeilingMinutes = 2
	cfg.LLM.BaseURL = "scripted://local"
	cfg.LLM.Model = "scripted"
	cfg.Journal.Path = journalPath
	return cfg
}
