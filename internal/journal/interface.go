// Package journal provides the append-only decision journal for advisor
// outcomes and circuit-breaker firings, plus the account statistics the
// advisor prompt consumes.
package journal

import "github.com/halpertj/perp_sentry/internal/models"

// Interface defines the contract for decision-journal persistence.
//
// Implementations must be safe for concurrent use - watchers for different
// symbols call these methods from their own goroutines and rely on the
// journal to serialize internally.
type Interface interface {
	// Record appends a decision artifact. Writes are idempotent on the
	// record's fingerprint; replaying a record returns ErrDuplicateRecord
	// and leaves the journal unchanged.
	Record(d *models.AdvisoryDecision) error
	HasRecord(fingerprint string) bool
	Records(symbol string, limit int) []models.AdvisoryDecision

	// Position lifecycle bookkeeping feeding the advisor's account block.
	NoteEntry(symbol string, timestampMs int64) error
	NoteClose(symbol string, realizedPnl float64, timestampMs int64) error
	EntriesOn(date string) int
	Statistics() *Statistics

	// Position thesis text recorded at entry, surfaced to the advisor.
	SetThesis(symbol, thesis string) error
	Thesis(symbol string) string

	// Data persistence
	Save() error
	Load() error
}

// NewJournal creates a new journal implementation (currently JSON-based).
func NewJournal(filepath string) (Interface, error) {
	return NewJSONJournal(filepath)
}

// Ensure JSONJournal implements Interface.
var _ Interface = (*JSONJournal)(nil)
