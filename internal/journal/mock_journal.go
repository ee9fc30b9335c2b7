package journal

import (
	"sync"
	"time"

	"github.com/halpertj/perp_sentry/internal/models"
)

// MockJournal is an in-memory Interface implementation for tests.
type MockJournal struct {
	mu           sync.Mutex
	records      []models.AdvisoryDecision
	fingerprints map[string]bool
	dailyEntries map[string]int
	theses       map[string]string
	stats        Statistics

	// RecordErr, when set, is returned by Record.
	RecordErr error
}

var _ Interface = (*MockJournal)(nil)

// NewMockJournal creates an empty in-memory journal.
func NewMockJournal() *MockJournal {
	return &MockJournal{
		fingerprints: make(map[string]bool),
		dailyEntries: make(map[string]int),
		theses:       make(map[string]string),
	}
}

// Record appends the record, idempotent on fingerprint.
func (m *MockJournal) Record(d *models.AdvisoryDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	fp := d.Fingerprint()
	if m.fingerprints[fp] {
		return ErrDuplicateRecord
	}
	m.fingerprints[fp] = true
	m.records = append(m.records, *d)
	return nil
}

// HasRecord reports whether the fingerprint was recorded.
func (m *MockJournal) HasRecord(fingerprint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprints[fingerprint]
}

// Records returns recorded decisions for the symbol (all when symbol is "").
func (m *MockJournal) Records(symbol string, limit int) []models.AdvisoryDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AdvisoryDecision
	for _, rec := range m.records {
		if symbol == "" || rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// NoteEntry bumps the daily entry counter.
func (m *MockJournal) NoteEntry(symbol string, timestampMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := time.UnixMilli(timestampMs).UTC().Format("2006-01-02")
	m.dailyEntries[day]++
	return nil
}

// NoteClose folds a close into the statistics.
func (m *MockJournal) NoteClose(symbol string, realizedPnl float64, timestampMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalClosed++
	m.stats.TotalPnL += realizedPnl
	if realizedPnl > 0 {
		m.stats.WinningTrades++
		if m.stats.CurrentStreak >= 0 {
			m.stats.CurrentStreak++
		} else {
			m.stats.CurrentStreak = 1
		}
	} else {
		m.stats.LosingTrades++
		if m.stats.CurrentStreak <= 0 {
			m.stats.CurrentStreak--
		} else {
			m.stats.CurrentStreak = -1
		}
	}
	delete(m.theses, symbol)
	return nil
}

// EntriesOn returns the entry count for the UTC date.
func (m *MockJournal) EntriesOn(date string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyEntries[date]
}

// Statistics returns a copy of the aggregate statistics.
func (m *MockJournal) Statistics() *Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	return &stats
}

// SetThesis stores a thesis for the symbol.
func (m *MockJournal) SetThesis(symbol, thesis string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.theses[symbol] = thesis
	return nil
}

// Thesis returns the stored thesis, or "".
func (m *MockJournal) Thesis(symbol string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.theses[symbol]
}

// Save is a no-op for the in-memory journal.
func (m *MockJournal) Save() error { return nil }

// Load is a no-op for the in-memory journal.
func (m *MockJournal) Load() error { return nil }
