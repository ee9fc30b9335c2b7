package models

// TriggerState is the per-symbol, per-position memory carried between ticks.
// The advisor reference fields (LastAdvisorCheckMs and friends) move only when
// the advisor path completes; trigger cooldowns move whenever the named
// trigger fires. The evaluator treats an input state as read-only and returns
// a fresh copy, so callers can replay a tick without side effects.
type TriggerState struct {
	LastAdvisorCheckMs      int64            `json:"last_advisor_check_ms"` // 0 means never
	LastAdvisorPnlPctEquity float64          `json:"last_advisor_pnl_pct_equity"`
	LastAdvisorMarkPrice    float64          `json:"last_advisor_mark_price"`
	LastFundingRateSign     int              `json:"last_funding_rate_sign"` // -1, 0, +1
	Cooldowns               map[string]int64 `json:"cooldowns"`              // trigger name -> last fire ms
}

// NewTriggerState returns the state for a freshly-observed position. The PnL
// baseline deliberately seeds at zero rather than the first snapshot's value;
// the first pnl_shift therefore measures against flat.
func NewTriggerState() *TriggerState {
	return &TriggerState{
		Cooldowns: make(map[string]int64),
	}
}

// Clone returns a deep copy.
func (s *TriggerState) Clone() *TriggerState {
	if s == nil {
		return nil
	}
	out := &TriggerState{
		LastAdvisorCheckMs:      s.LastAdvisorCheckMs,
		LastAdvisorPnlPctEquity: s.LastAdvisorPnlPctEquity,
		LastAdvisorMarkPrice:    s.LastAdvisorMarkPrice,
		LastFundingRateSign:     s.LastFundingRateSign,
		Cooldowns:               make(map[string]int64, len(s.Cooldowns)),
	}
	for k, v := range s.Cooldowns {
		out.Cooldowns[k] = v
	}
	return out
}

// FiredTrigger pairs a trigger name with a human-readable detail line for the
// advisor prompt. Consumed within the tick that produced it.
type FiredTrigger struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}
