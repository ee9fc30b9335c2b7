package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/halpertj/perp_sentry/internal/advisor"
	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/notify"
	"github.com/halpertj/perp_sentry/internal/util"
)

// WatcherState represents the lifecycle state of a position watcher.
type WatcherState string

const (
	// StateIdle means no position is being managed.
	StateIdle WatcherState = "idle"
	// StateActive means the watcher is polling an open position.
	StateActive WatcherState = "active"
	// StateClosing means the position is gone and state is being torn down.
	StateClosing WatcherState = "closing"
	// StateTerminated means the watcher was shut down.
	StateTerminated WatcherState = "terminated"
)

// Advisor is the advisory collaborator consulted when triggers fire.
type Advisor interface {
	Advise(ctx context.Context, req advisor.Request) advisor.Result
}

// Watcher owns the heartbeat for a single symbol: it snapshots at the tick
// interval, applies circuit breakers, evaluates triggers, and consults the
// advisor. The buffer and trigger state are owned exclusively by the watcher;
// ticks for one symbol are strictly serialized.
type Watcher struct {
	symbol      string
	snapshotter *Snapshotter
	executor    exchange.OrderExecutor
	advisor     Advisor
	journal     journal.Interface
	notifier    notify.Notifier
	logger      *log.Logger
	cfg         *config.Config

	buffer    *RollingBuffer
	trigState *models.TriggerState

	mu          sync.RWMutex
	state       WatcherState
	lastTick    *models.PositionTick
	consecFails int
	pendingOpen bool

	done chan struct{}
}

// NewWatcher creates a watcher for the symbol. pendingOpen marks a position
// the supervisor just discovered, so the first successful tick raises
// position_opened.
func NewWatcher(symbol string, snapshotter *Snapshotter, executor exchange.OrderExecutor,
	adv Advisor, jrnl journal.Interface, notifier notify.Notifier,
	logger *log.Logger, cfg *config.Config, pendingOpen bool) *Watcher {
	return &Watcher{
		symbol:      symbol,
		snapshotter: snapshotter,
		executor:    executor,
		advisor:     adv,
		journal:     jrnl,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		buffer:      NewRollingBuffer(cfg.Heartbeat.RollingBufferSize),
		trigState:   models.NewTriggerState(),
		state:       StateIdle,
		pendingOpen: pendingOpen,
		done:        make(chan struct{}),
	}
}

// Run polls until the position closes, persistent failures force a reset, or
// the context is canceled. It ticks once immediately, then at the configured
// interval.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.TickInterval())
	defer ticker.Stop()

	if !w.runTick(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			w.setState(StateTerminated)
			return
		case <-ticker.C:
			if !w.runTick(ctx) {
				return
			}
		}
	}
}

// Done is closed when the watcher's loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Symbol returns the watched symbol.
func (w *Watcher) Symbol() string {
	return w.symbol
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// LastTick returns the most recent snapshot, or nil.
func (w *Watcher) LastTick() *models.PositionTick {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastTick
}

func (w *Watcher) setState(state WatcherState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

// runTick executes one snapshot/evaluate cycle. It returns false when the
// watcher should stop (position closed, fatal failures, shutdown).
func (w *Watcher) runTick(ctx context.Context) bool {
	if ctx.Err() != nil {
		w.setState(StateTerminated)
		return false
	}

	tick, err := w.snapshotter.Snapshot(ctx, w.symbol)
	if err != nil {
		// Shutdown mid-snapshot just discards the tick.
		if errors.Is(err, context.Canceled) {
			w.setState(StateTerminated)
			return false
		}
		return w.handleSnapshotFailure(err)
	}
	w.mu.Lock()
	w.consecFails = 0
	w.mu.Unlock()

	if tick == nil {
		return w.handleFlat()
	}
	return w.handleTick(ctx, tick)
}

func (w *Watcher) handleSnapshotFailure(err error) bool {
	w.mu.Lock()
	w.consecFails++
	fails := w.consecFails
	w.mu.Unlock()

	w.logger.Printf("Warning: snapshot failed for %s (%d consecutive): %v", w.symbol, fails, err)

	if fails == w.cfg.Heartbeat.SnapshotWarnFailures {
		w.notify(fmt.Sprintf("⚠️ snapshot_failing: %s has %d consecutive snapshot failures", w.symbol, fails))
	}
	if fails >= w.cfg.Heartbeat.SnapshotFatalFailures {
		w.notify(fmt.Sprintf("🛑 %s watcher giving up after %d consecutive snapshot failures; supervisor will retry", w.symbol, fails))
		w.setState(StateIdle)
		return false
	}
	return true
}

// handleFlat processes a tick where the position no longer exists.
func (w *Watcher) handleFlat() bool {
	if w.State() != StateActive {
		// Never saw the position; nothing to tear down.
		w.setState(StateIdle)
		return false
	}

	w.setState(StateClosing)
	last := w.LastTick()
	realized := 0.0
	if last != nil {
		realized = last.UnrealizedPnl
	}

	w.logger.Printf("Position %s closed (last unrealized PnL %.2f)", w.symbol, realized)
	if last != nil {
		rec := &models.AdvisoryDecision{
			Kind:      models.KindPositionHeartbeat,
			Symbol:    w.symbol,
			Timestamp: last.Timestamp + 1, // distinct fingerprint from the final advisory
			Triggers:  []string{TriggerPositionClosed},
			Decision:  models.Decision{Action: "none", Reason: "position no longer open"},
			Outcome:   models.OutcomeInfo,
			Snapshot:  last.Compact(),
		}
		if err := w.journal.Record(rec); err != nil && !errors.Is(err, journal.ErrDuplicateRecord) {
			w.logger.Printf("Warning: failed to journal close of %s: %v", w.symbol, err)
		}
		if err := w.journal.NoteClose(w.symbol, realized, last.Timestamp); err != nil {
			w.logger.Printf("Warning: failed to record close stats for %s: %v", w.symbol, err)
		}
	}
	w.notify(fmt.Sprintf("📕 %s position closed (last PnL %.2f)", w.symbol, realized))

	// Teardown: buffer and trigger state die with the position.
	w.buffer = NewRollingBuffer(w.cfg.Heartbeat.RollingBufferSize)
	w.trigState = models.NewTriggerState()
	w.setState(StateIdle)
	return false
}

// handleTick runs the active-position pipeline: buffer push, circuit
// breakers, trigger evaluation, advisor.
func (w *Watcher) handleTick(ctx context.Context, tick *models.PositionTick) bool {
	openedNow := false
	if w.State() != StateActive {
		w.setState(StateActive)
		openedNow = w.pendingOpen
		w.pendingOpen = false
		if openedNow {
			if err := w.journal.NoteEntry(w.symbol, tick.Timestamp); err != nil {
				w.logger.Printf("Warning: failed to record entry for %s: %v", w.symbol, err)
			}
		}
	}

	w.mu.Lock()
	w.lastTick = tick
	w.mu.Unlock()
	w.buffer.Push(*tick)

	// Hard rails first; the advisor never sees a breaker tick.
	if tripped, reason := CheckCircuitBreakers(tick, w.cfg.Heartbeat.CircuitBreakers); tripped {
		w.fireCircuitBreaker(ctx, tick, reason)
		return false
	}

	result := EvaluateTriggers(tick.Timestamp, tick, w.buffer, w.trigState, w.cfg.Heartbeat.Triggers,
		ExtraFlags{PositionOpened: openedNow})
	w.trigState = result.NextState
	if len(result.Fired) == 0 {
		return true
	}

	w.logger.Printf("Triggers fired for %s: %v", w.symbol, TriggerNames(result.Fired))
	advResult := w.advisor.Advise(ctx, advisor.Request{
		Symbol: w.symbol,
		Tick:   tick,
		Window: w.buffer.Window(w.buffer.Capacity()),
		Fired:  result.Fired,
	})
	if advResult.CommitState {
		w.trigState.LastAdvisorCheckMs = tick.Timestamp
		w.trigState.LastAdvisorPnlPctEquity = tick.PnlPctOfEquity
		w.trigState.LastAdvisorMarkPrice = tick.MarkPrice
		w.trigState.LastFundingRateSign = util.Sign(tick.FundingRate)
	}
	return true
}

// fireCircuitBreaker closes the position without consulting the advisor.
// Breaker closes are never skipped by the advisor rate limiter.
func (w *Watcher) fireCircuitBreaker(ctx context.Context, tick *models.PositionTick, reason string) {
	w.logger.Printf("CIRCUIT BREAKER for %s: %s", w.symbol, reason)

	outcome := models.OutcomeOK
	if _, err := w.executor.ClosePosition(ctx, w.symbol, reason); err != nil {
		w.logger.Printf("Circuit breaker close failed for %s: %v", w.symbol, err)
		outcome = models.OutcomeFailed
	}

	rec := &models.AdvisoryDecision{
		Kind:      models.KindCircuitBreaker,
		Symbol:    w.symbol,
		Timestamp: tick.Timestamp,
		Decision:  models.Decision{Action: string(advisor.ActionClose), Reason: reason},
		Outcome:   outcome,
		Snapshot:  tick.Compact(),
	}
	if err := w.journal.Record(rec); err != nil && !errors.Is(err, journal.ErrDuplicateRecord) {
		w.logger.Printf("Warning: failed to journal circuit breaker for %s: %v", w.symbol, err)
	}
	w.notify(fmt.Sprintf("🔴 CIRCUIT BREAKER %s: %s (close %s)", w.symbol, reason, outcome))

	if outcome == models.OutcomeOK {
		if err := w.journal.NoteClose(w.symbol, tick.UnrealizedPnl, tick.Timestamp); err != nil {
			w.logger.Printf("Warning: failed to record close stats for %s: %v", w.symbol, err)
		}
	}
	w.setState(StateClosing)
	w.buffer = NewRollingBuffer(w.cfg.Heartbeat.RollingBufferSize)
	w.trigState = models.NewTriggerState()
	w.setState(StateIdle)
}

func (w *Watcher) notify(text string) {
	if w.cfg.NotifyEnabled() && w.notifier != nil {
		w.notifier.Notify(text)
	}
}
