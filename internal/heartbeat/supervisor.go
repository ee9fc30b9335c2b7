package heartbeat

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/notify"
)

// WatcherStatus is a point-in-time view of one watcher, consumed by the
// dashboard.
type WatcherStatus struct {
	Symbol   string              `json:"symbol"`
	State    WatcherState        `json:"state"`
	LastTick *models.TickCompact `json:"last_tick,omitempty"`
}

// Supervisor reconciles the set of watchers against the exchange's open
// positions: it spawns a watcher when a symbol appears and prunes watchers
// that have exited. It also owns the shared advisor rate limiter.
type Supervisor struct {
	provider    exchange.Provider
	snapshotter *Snapshotter
	executor    exchange.OrderExecutor
	advisor     Advisor
	journal     journal.Interface
	notifier    notify.Notifier
	logger      *log.Logger
	cfg         *config.Config
	limiter     *SlidingWindowLimiter

	mu       sync.RWMutex
	watchers map[string]*Watcher

	group *errgroup.Group
}

// NewSupervisor wires the heartbeat's top level. The limiter it creates is
// shared by every advisor consultation the watchers make. The advisor is
// attached afterwards via SetAdvisor because it consumes the supervisor's
// limiter and position count.
func NewSupervisor(provider exchange.Provider, snapshotter *Snapshotter,
	executor exchange.OrderExecutor, jrnl journal.Interface,
	notifier notify.Notifier, logger *log.Logger, cfg *config.Config) *Supervisor {
	return &Supervisor{
		provider:    provider,
		snapshotter: snapshotter,
		executor:    executor,
		journal:     jrnl,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		limiter:     NewSlidingWindowLimiter(cfg.Heartbeat.Advisor.MaxAdvisorCallsPerHour, time.Hour),
		watchers:    make(map[string]*Watcher),
	}
}

// SetAdvisor attaches the advisory collaborator. Must be called before Run.
func (s *Supervisor) SetAdvisor(adv Advisor) {
	s.advisor = adv
}

// Limiter exposes the shared advisor rate limiter.
func (s *Supervisor) Limiter() *SlidingWindowLimiter {
	return s.limiter
}

// OpenPositionCount reports how many watchers currently hold an active
// position. It backs the advisor prompt's account block.
func (s *Supervisor) OpenPositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, w := range s.watchers {
		if w.State() == StateActive {
			count++
		}
	}
	return count
}

// Statuses lists every live watcher for the dashboard.
func (s *Supervisor) Statuses() []WatcherStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]WatcherStatus, 0, len(s.watchers))
	for _, w := range s.watchers {
		st := WatcherStatus{Symbol: w.Symbol(), State: w.State()}
		if tick := w.LastTick(); tick != nil {
			compact := tick.Compact()
			st.LastTick = &compact
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Run reconciles immediately, then at the supervisor interval, until the
// context is canceled. It returns after every watcher has drained its
// in-flight tick.
func (s *Supervisor) Run(ctx context.Context) error {
	s.group, ctx = errgroup.WithContext(ctx)

	s.logger.Printf("Supervisor started (reconcile every %v, tick every %v)",
		s.cfg.SupervisorInterval(), s.cfg.TickInterval())

	ticker := time.NewTicker(s.cfg.SupervisorInterval())
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("Supervisor shutting down, waiting for in-flight ticks")
			err := s.group.Wait()
			s.logger.Printf("All watchers drained")
			return err
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// reconcile diffs open positions against live watchers. Watchers retire
// themselves when their position disappears; reconcile only prunes the
// exited ones and spawns newcomers.
func (s *Supervisor) reconcile(ctx context.Context) {
	positions, err := s.provider.ListOpenPositions(ctx)
	if err != nil {
		s.logger.Printf("Warning: reconcile failed to list positions: %v", err)
		return
	}

	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[p.Symbol] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, w := range s.watchers {
		select {
		case <-w.Done():
			delete(s.watchers, symbol)
		default:
		}
	}

	for symbol := range open {
		if _, exists := s.watchers[symbol]; exists {
			continue
		}
		s.logger.Printf("Spawning watcher for %s", symbol)
		w := NewWatcher(symbol, s.snapshotter, s.executor, s.advisor,
			s.journal, s.notifier, s.logger, s.cfg, true)
		s.watchers[symbol] = w
		s.group.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
}
