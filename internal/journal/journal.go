package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halpertj/perp_sentry/internal/models"
)

// JSONJournal persists decision records to a single JSON file with atomic
// rename writes. A sync.RWMutex serializes access so all Interface methods
// are safe for concurrent watchers.
type JSONJournal struct {
	mu       sync.RWMutex
	filepath string
	data     *journalData
}

type journalData struct {
	Records      []models.AdvisoryDecision `json:"records"`
	Fingerprints map[string]bool           `json:"fingerprints"`
	DailyEntries map[string]int            `json:"daily_entries"` // "2006-01-02" -> entries opened
	Theses       map[string]string         `json:"theses"`        // symbol -> thesis text
	Statistics   *Statistics               `json:"statistics"`
	LastUpdated  time.Time                 `json:"last_updated"`
}

// Statistics aggregates closed-position outcomes for the advisor's account
// context block.
type Statistics struct {
	TotalClosed   int     `json:"total_closed"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	CurrentStreak int     `json:"current_streak"` // positive = wins, negative = losses
}

// NewJSONJournal opens (or creates) a journal file at the given path.
func NewJSONJournal(filepath string) (*JSONJournal, error) {
	j := &JSONJournal{
		filepath: filepath,
		data: &journalData{
			Fingerprints: make(map[string]bool),
			DailyEntries: make(map[string]int),
			Theses:       make(map[string]string),
			Statistics:   &Statistics{},
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := j.Load(); err != nil {
			return nil, fmt.Errorf("loading journal: %w", err)
		}
	}

	return j, nil
}

// Load reads the journal file from disk.
func (j *JSONJournal) Load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	raw, err := os.ReadFile(j.filepath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &j.data); err != nil {
		return err
	}
	// Maps may be nil after decoding an older or hand-edited file.
	if j.data.Fingerprints == nil {
		j.data.Fingerprints = make(map[string]bool)
	}
	if j.data.DailyEntries == nil {
		j.data.DailyEntries = make(map[string]int)
	}
	if j.data.Theses == nil {
		j.data.Theses = make(map[string]string)
	}
	if j.data.Statistics == nil {
		j.data.Statistics = &Statistics{}
	}
	return nil
}

// Save writes the journal to disk via a temp file and atomic rename.
func (j *JSONJournal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked()
}

func (j *JSONJournal) saveLocked() error {
	j.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := j.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, j.filepath)
}

// Record appends a decision artifact, idempotent on fingerprint.
func (j *JSONJournal) Record(d *models.AdvisoryDecision) error {
	if d == nil {
		return fmt.Errorf("nil decision record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	fp := d.Fingerprint()
	if j.data.Fingerprints[fp] {
		return ErrDuplicateRecord
	}

	rec := *d
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	j.data.Records = append(j.data.Records, rec)
	j.data.Fingerprints[fp] = true

	return j.saveLocked()
}

// HasRecord reports whether a record with the fingerprint was already written.
func (j *JSONJournal) HasRecord(fingerprint string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data.Fingerprints[fingerprint]
}

// Records returns up to limit most-recent records, newest last. An empty
// symbol matches all symbols; limit <= 0 means no limit.
func (j *JSONJournal) Records(symbol string, limit int) []models.AdvisoryDecision {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []models.AdvisoryDecision
	for _, rec := range j.data.Records {
		if symbol == "" || rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// NoteEntry bumps the day's entry count when a position is first observed.
func (j *JSONJournal) NoteEntry(symbol string, timestampMs int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := time.UnixMilli(timestampMs).UTC().Format("2006-01-02")
	j.data.DailyEntries[day]++
	return j.saveLocked()
}

// NoteClose folds a realized PnL into the statistics and clears the thesis.
func (j *JSONJournal) NoteClose(symbol string, realizedPnl float64, timestampMs int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := j.data.Statistics
	stats.TotalClosed++
	stats.TotalPnL += realizedPnl

	if realizedPnl > 0 {
		stats.WinningTrades++
		if stats.CurrentStreak >= 0 {
			stats.CurrentStreak++
		} else {
			stats.CurrentStreak = 1
		}
	} else {
		stats.LosingTrades++
		if stats.CurrentStreak <= 0 {
			stats.CurrentStreak--
		} else {
			stats.CurrentStreak = -1
		}
	}
	if stats.TotalClosed > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalClosed)
	}

	delete(j.data.Theses, symbol)
	return j.saveLocked()
}

// EntriesOn returns the number of entries observed on the given UTC date
// ("2006-01-02").
func (j *JSONJournal) EntriesOn(date string) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data.DailyEntries[date]
}

// Statistics returns a copy of the aggregate statistics.
func (j *JSONJournal) Statistics() *Statistics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	stats := *j.data.Statistics
	return &stats
}

// SetThesis stores the entry rationale for a symbol.
func (j *JSONJournal) SetThesis(symbol, thesis string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data.Theses[symbol] = thesis
	return j.saveLocked()
}

// Thesis returns the stored rationale, or "" when none was recorded.
func (j *JSONJournal) Thesis(symbol string) string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data.Theses[symbol]
}
