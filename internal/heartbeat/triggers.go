package heartbeat

import (
	"fmt"
	"math"

	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/models"
	"github.com/halpertj/perp_sentry/internal/util"
)

// Trigger names. Each names a mechanical condition that justifies waking the
// advisor when met and out of cooldown.
const (
	TriggerPositionOpened       = "position_opened"
	TriggerPositionClosed       = "position_closed"
	TriggerStopMissing          = "stop_missing"
	TriggerPnlShift             = "pnl_shift"
	TriggerApproachingStop      = "approaching_stop"
	TriggerApproachingTP        = "approaching_tp"
	TriggerLiquidationProximity = "liquidation_proximity"
	TriggerFundingFlip          = "funding_flip"
	TriggerFundingSpike         = "funding_spike"
	TriggerVolatilitySpike      = "volatility_spike"
	TriggerTimeCeiling          = "time_ceiling"
)

// namedCooldownSeconds are the per-trigger cooldown defaults. They take
// precedence over the generic trigger_cooldown_seconds fallback. The three
// zero-cooldown entries are naturally rate-limited elsewhere: open/close fire
// once per lifecycle transition, and time_ceiling is gated by the advisor
// commit of LastAdvisorCheckMs.
var namedCooldownSeconds = map[string]int64{
	TriggerPositionOpened:       0,
	TriggerPositionClosed:       0,
	TriggerStopMissing:          60,
	TriggerPnlShift:             180,
	TriggerApproachingStop:      120,
	TriggerApproachingTP:        120,
	TriggerLiquidationProximity: 60,
	TriggerFundingFlip:          600,
	TriggerFundingSpike:         600,
	TriggerVolatilitySpike:      180,
	TriggerTimeCeiling:          0,
}

// ExtraFlags carries lifecycle transitions detected by the watcher into the
// evaluator.
type ExtraFlags struct {
	PositionOpened bool
	PositionClosed bool
}

// EvalResult is the evaluator's output: the triggers that fired on this tick
// and the advanced state. The input state is never mutated.
type EvalResult struct {
	Fired     []models.FiredTrigger
	NextState *models.TriggerState
}

// EvaluateTriggers is a pure function over one tick. The buffer is expected
// to already contain the tick being evaluated (the watcher pushes before it
// evaluates). Replaying the same inputs yields identical output.
func EvaluateTriggers(nowMs int64, tick *models.PositionTick, buffer *RollingBuffer,
	state *models.TriggerState, cfg config.TriggerConfig, extra ExtraFlags) EvalResult {

	next := state.Clone()
	if next == nil {
		next = models.NewTriggerState()
	}

	var fired []models.FiredTrigger
	fire := func(name, detail string) {
		cooldownMs := cooldownSecondsFor(name, cfg) * 1000
		if last, ok := next.Cooldowns[name]; ok && cooldownMs > 0 && nowMs-last < cooldownMs {
			return
		}
		fired = append(fired, models.FiredTrigger{Name: name, Detail: detail})
		next.Cooldowns[name] = nowMs
	}

	if extra.PositionOpened {
		fire(TriggerPositionOpened, fmt.Sprintf("position opened: %s %s", tick.Symbol, tick.Side))
	}
	if extra.PositionClosed {
		fire(TriggerPositionClosed, fmt.Sprintf("position closed: %s", tick.Symbol))
	}

	if !tick.HasStop() {
		fire(TriggerStopMissing, "no stop-loss order is attached to this position")
	}

	if util.IsFinite(tick.PnlPctOfEquity) {
		shift := math.Abs(tick.PnlPctOfEquity - next.LastAdvisorPnlPctEquity)
		if shift >= cfg.PnlShiftPct {
			fire(TriggerPnlShift, fmt.Sprintf("PnL moved %.2f%% of equity since last review (now %.2f%%, was %.2f%%)",
				shift, tick.PnlPctOfEquity, next.LastAdvisorPnlPctEquity))
		}
	}

	if tick.HasStop() {
		if dist := util.PctDistance(tick.MarkPrice, *tick.StopLossPrice); dist <= cfg.ApproachingStopPct {
			fire(TriggerApproachingStop, fmt.Sprintf("mark %.4f is %.2f%% from stop %.4f",
				tick.MarkPrice, dist, *tick.StopLossPrice))
		}
	}
	if tick.HasTakeProfit() {
		if dist := util.PctDistance(tick.MarkPrice, *tick.TakeProfitPrice); dist <= cfg.ApproachingTpPct {
			fire(TriggerApproachingTP, fmt.Sprintf("mark %.4f is %.2f%% from take-profit %.4f",
				tick.MarkPrice, dist, *tick.TakeProfitPrice))
		}
	}

	if util.IsFinite(tick.DistToLiquidationPct) && tick.DistToLiquidationPct <= cfg.LiquidationProximityPct {
		fire(TriggerLiquidationProximity, fmt.Sprintf("liquidation %.2f%% away (threshold %.2f%%)",
			tick.DistToLiquidationPct, cfg.LiquidationProximityPct))
	}

	fundingSign := util.Sign(tick.FundingRate)
	if fundingSign != 0 && next.LastFundingRateSign != 0 && fundingSign != next.LastFundingRateSign {
		fire(TriggerFundingFlip, fmt.Sprintf("funding rate flipped sign: now %+.6f", tick.FundingRate))
	}
	if util.IsFinite(tick.FundingRate) && math.Abs(tick.FundingRate) >= cfg.FundingSpike {
		fire(TriggerFundingSpike, fmt.Sprintf("funding rate %+.6f beyond %.6f", tick.FundingRate, cfg.FundingSpike))
	}

	// Volatility is measured across the last window intervals: the reference
	// is the tick window steps back from the current one. Skipped silently
	// while the buffer is still filling.
	if ref, ok := buffer.At(cfg.VolatilitySpikeWindowTicks); ok {
		if util.IsFinite(ref.MarkPrice) && util.IsFinite(tick.MarkPrice) && ref.MarkPrice != 0 {
			movePct := math.Abs(tick.MarkPrice-ref.MarkPrice) / math.Abs(ref.MarkPrice) * 100
			if movePct >= cfg.VolatilitySpikePct {
				fire(TriggerVolatilitySpike, fmt.Sprintf("mark moved %.2f%% over last %d ticks",
					movePct, cfg.VolatilitySpikeWindowTicks))
			}
		}
	}

	ceilingMs := int64(cfg.TimeCeilingMinutes) * 60 * 1000
	if next.LastAdvisorCheckMs == 0 || nowMs-next.LastAdvisorCheckMs >= ceilingMs {
		fire(TriggerTimeCeiling, fmt.Sprintf("no advisor review in %d minutes", cfg.TimeCeilingMinutes))
	}

	return EvalResult{Fired: fired, NextState: next}
}

// cooldownSecondsFor resolves the cooldown for a trigger: named default when
// one exists, generic fallback otherwise.
func cooldownSecondsFor(name string, cfg config.TriggerConfig) int64 {
	if cd, ok := namedCooldownSeconds[name]; ok {
		return cd
	}
	return int64(cfg.TriggerCooldownSeconds)
}

// TriggerNames lists fired trigger names for journaling.
func TriggerNames(fired []models.FiredTrigger) []string {
	names := make([]string, 0, len(fired))
	for _, f := range fired {
		names = append(names, f.Name)
	}
	return names
}
