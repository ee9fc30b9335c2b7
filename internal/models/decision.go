package models

import "fmt"

// Outcome classifies how an advisory or circuit-breaker pass ended.
type Outcome string

const (
	// OutcomeOK means the advised action was dispatched successfully.
	OutcomeOK Outcome = "ok"
	// OutcomeFailed means the LLM call, parse, or order dispatch failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeRejected means the advised action failed safety validation.
	OutcomeRejected Outcome = "rejected"
	// OutcomeSkipped means the advisor was not consulted (rate limit).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeInfo marks informational records (position closed, etc.).
	OutcomeInfo Outcome = "info"
)

// Journal record kinds.
const (
	KindPositionHeartbeat = "position_heartbeat"
	KindCircuitBreaker    = "circuit_breaker"
)

// Decision captures the advised (or forced) action with its parameters.
type Decision struct {
	Action string             `json:"action"`
	Params map[string]float64 `json:"params,omitempty"`
	Reason string             `json:"reason"`
}

// AdvisoryDecision is the journal record written once per advisor pass or
// circuit-breaker firing.
type AdvisoryDecision struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Symbol    string      `json:"symbol"`
	Timestamp int64       `json:"timestamp"` // ms since epoch
	Triggers  []string    `json:"triggers,omitempty"`
	Decision  Decision    `json:"decision"`
	Outcome   Outcome     `json:"outcome"`
	Snapshot  TickCompact `json:"snapshot"`
}

// Fingerprint identifies a record for idempotent journal writes: replaying
// the same symbol/tick pair must not duplicate the record.
func (d *AdvisoryDecision) Fingerprint() string {
	return fmt.Sprintf("heartbeat:%s:%d", d.Symbol, d.Timestamp)
}
