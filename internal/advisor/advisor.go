package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/llm"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/notify"
)

// RateLimiter gates advisor invocations process-wide.
type RateLimiter interface {
	TryAcquire() bool
	Remaining() int
}

// PositionCounter reports how many positions are currently being watched.
type PositionCounter interface {
	OpenPositionCount() int
}

// Request is one advisory consultation: the tick that fired, the recent
// trajectory, and the triggers that woke the advisor.
type Request struct {
	Symbol string
	Tick   *models.PositionTick
	Window []models.PositionTick
	Fired  []models.FiredTrigger
}

// Result reports how the consultation ended. CommitState tells the watcher
// whether to advance the advisor reference fields in its trigger state:
// true for every outcome except skipped, so a rate-limited tick can consult
// the advisor again once capacity returns.
type Result struct {
	Outcome     models.Outcome
	Action      *Action
	CommitState bool
}

// Config holds the orchestrator's tunables.
type Config struct {
	Temperature         float64
	MaxTokens           int
	MinPositionNotional float64
	MaxEntriesPerDay    int
	NotifyEnabled       bool
}

// Orchestrator runs the advisory path: rate limit, prompt, LLM call, parse,
// validate, dispatch, journal, notify.
type Orchestrator struct {
	llm      llm.Client
	executor exchange.OrderExecutor
	journal  journal.Interface
	notifier notify.Notifier
	limiter  RateLimiter
	counter  PositionCounter
	logger   *log.Logger
	cfg      Config
}

// NewOrchestrator wires the advisory path.
func NewOrchestrator(llmClient llm.Client, executor exchange.OrderExecutor, jrnl journal.Interface,
	notifier notify.Notifier, limiter RateLimiter, counter PositionCounter,
	logger *log.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:      llmClient,
		executor: executor,
		journal:  jrnl,
		notifier: notifier,
		limiter:  limiter,
		counter:  counter,
		logger:   logger,
		cfg:      cfg,
	}
}

// Advise runs one consultation for the request and journals the outcome.
func (o *Orchestrator) Advise(ctx context.Context, req Request) Result {
	tick := req.Tick

	if !o.limiter.TryAcquire() {
		o.logger.Printf("Advisor budget exhausted, skipping consultation for %s", req.Symbol)
		o.record(req, models.OutcomeSkipped, models.Decision{
			Action: string(ActionHold),
			Reason: "advisor rate limit exhausted",
		})
		return Result{Outcome: models.OutcomeSkipped, CommitState: false}
	}

	account := AccountContext{
		Equity:             tick.AccountEquity,
		OpenPositions:      o.openPositionCount(),
		EntriesToday:       o.journal.EntriesOn(time.UnixMilli(tick.Timestamp).UTC().Format("2006-01-02")),
		MaxEntriesPerDay:   o.cfg.MaxEntriesPerDay,
		WinLossStreak:      o.journal.Statistics().CurrentStreak,
		RateLimitRemaining: o.limiter.Remaining(),
	}
	messages := BuildMessages(req, account, o.journal.Thesis(req.Symbol))

	reply, err := o.llm.Complete(ctx, messages, llm.Options{
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		o.logger.Printf("Advisor LLM call failed for %s: %v", req.Symbol, err)
		o.record(req, models.OutcomeFailed, models.Decision{Reason: fmt.Sprintf("llm call failed: %v", err)})
		o.notify(fmt.Sprintf("⚠️ %s advisor call failed: %v", req.Symbol, err))
		return Result{Outcome: models.OutcomeFailed, CommitState: true}
	}

	action, err := ParseReply(reply)
	if err != nil {
		o.logger.Printf("Advisor reply unparseable for %s: %v", req.Symbol, err)
		o.record(req, models.OutcomeFailed, models.Decision{Reason: fmt.Sprintf("unparseable reply: %v", err)})
		return Result{Outcome: models.OutcomeFailed, CommitState: true}
	}

	decision := models.Decision{
		Action: string(action.Kind),
		Params: action.Params(),
		Reason: action.Reason,
	}

	if err := ValidateAction(action, tick, o.cfg.MinPositionNotional); err != nil {
		o.logger.Printf("Advisor action rejected for %s: %v", req.Symbol, err)
		decision.Reason = fmt.Sprintf("rejected: %v (advisor said: %s)", err, action.Reason)
		o.record(req, models.OutcomeRejected, decision)
		o.notify(fmt.Sprintf("🚫 %s advisor action %s rejected: %v", req.Symbol, action.Kind, err))
		return Result{Outcome: models.OutcomeRejected, Action: action, CommitState: true}
	}

	if err := o.dispatch(ctx, req.Symbol, action); err != nil {
		o.logger.Printf("Advisor dispatch failed for %s: %v", req.Symbol, err)
		decision.Reason = fmt.Sprintf("dispatch failed: %v (advisor said: %s)", err, action.Reason)
		o.record(req, models.OutcomeFailed, decision)
		o.notify(fmt.Sprintf("⚠️ %s advisor action %s failed to execute: %v", req.Symbol, action.Kind, err))
		return Result{Outcome: models.OutcomeFailed, Action: action, CommitState: true}
	}

	o.record(req, models.OutcomeOK, decision)
	if action.Kind != ActionHold {
		o.notify(fmt.Sprintf("✅ %s [%s] advisor: %s - %s",
			req.Symbol, triggerSummary(req.Fired), action.Kind, action.Reason))
	}
	return Result{Outcome: models.OutcomeOK, Action: action, CommitState: true}
}

// dispatch translates a validated action into order collaborator calls.
func (o *Orchestrator) dispatch(ctx context.Context, symbol string, action *Action) error {
	switch action.Kind {
	case ActionHold:
		return nil
	case ActionTightenStop:
		_, err := o.executor.TightenStop(ctx, symbol, action.NewStopPrice)
		return err
	case ActionAdjustTakeProfit:
		_, err := o.executor.AdjustTakeProfit(ctx, symbol, action.NewTpPrice)
		return err
	case ActionPartialClose:
		_, err := o.executor.PartialClose(ctx, symbol, action.FractionOfPosition)
		return err
	case ActionClose:
		_, err := o.executor.ClosePosition(ctx, symbol, action.Reason)
		return err
	default:
		return fmt.Errorf("unreachable action %q", action.Kind)
	}
}

func (o *Orchestrator) record(req Request, outcome models.Outcome, decision models.Decision) {
	rec := &models.AdvisoryDecision{
		Kind:      models.KindPositionHeartbeat,
		Symbol:    req.Symbol,
		Timestamp: req.Tick.Timestamp,
		Triggers:  triggerNames(req.Fired),
		Decision:  decision,
		Outcome:   outcome,
		Snapshot:  req.Tick.Compact(),
	}
	if err := o.journal.Record(rec); err != nil && !errors.Is(err, journal.ErrDuplicateRecord) {
		o.logger.Printf("Warning: failed to journal advisory for %s: %v", req.Symbol, err)
	}
}

func (o *Orchestrator) notify(text string) {
	if o.cfg.NotifyEnabled && o.notifier != nil {
		o.notifier.Notify(text)
	}
}

func (o *Orchestrator) openPositionCount() int {
	if o.counter == nil {
		return 1
	}
	return o.counter.OpenPositionCount()
}

func triggerNames(fired []models.FiredTrigger) []string {
	names := make([]string, 0, len(fired))
	for _, f := range fired {
		names = append(names, f.Name)
	}
	return names
}
