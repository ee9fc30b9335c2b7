// Package dashboard serves a read-only JSON view of the daemon: watcher
// states, journal statistics, recent decisions, and the advisor budget.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/halpertj/perp_sentry/internal/exchange"
	"github.com/halpertj/perp_sentry/internal/heartbeat"
	"github.com/halpertj/perp_sentry/internal/journal"
)

// StatusSource is the supervisor surface the dashboard reads.
type StatusSource interface {
	Statuses() []heartbeat.WatcherStatus
	OpenPositionCount() int
}

// BudgetSource reports the remaining advisor call budget.
type BudgetSource interface {
	Remaining() int
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	status    StatusSource
	budget    BudgetSource
	journal   journal.Interface
	provider  exchange.Provider
	logger    *logrus.Logger
	addr      string
	authToken string
}

type Config struct {
	Addr      string
	AuthToken string
}

type overview struct {
	Watchers      []heartbeat.WatcherStatus `json:"watchers"`
	OpenPositions int                       `json:"open_positions"`
	Equity        float64                   `json:"equity"`
	AdvisorBudget int                       `json:"advisor_calls_remaining"`
	Stats         *journal.Statistics       `json:"stats"`
	LastUpdate    time.Time                 `json:"last_update"`
}

func NewServer(cfg Config, status StatusSource, budget BudgetSource,
	jrnl journal.Interface, provider exchange.Provider, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		status:    status,
		budget:    budget,
		journal:   jrnl,
		provider:  provider,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/overview", s.handleOverview)
	s.router.Get("/api/watchers", s.handleWatchers)
	s.router.Get("/api/decisions/{symbol}", s.handleDecisions)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	equity, err := s.provider.GetEquity(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to get account equity")
		equity = 0
	}

	s.writeJSON(w, overview{
		Watchers:      s.status.Statuses(),
		OpenPositions: s.status.OpenPositionCount(),
		Equity:        equity,
		AdvisorBudget: s.budget.Remaining(),
		Stats:         s.journal.Statistics(),
		LastUpdate:    time.Now().UTC(),
	})
}

func (s *Server) handleWatchers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.status.Statuses())
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	s.writeJSON(w, s.journal.Records(symbol, 50))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.journal.Statistics())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
