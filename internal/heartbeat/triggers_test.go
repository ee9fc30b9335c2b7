package heartbeat

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halpertj/perp_sentry/internal/config"
	"github.com/halpertj/perp_sentry/internal/models"
)

func testTriggerConfig() config.TriggerConfig {
	return config.TriggerConfig{
		PnlShiftPct:                1.5,
		ApproachingStopPct:         1.0,
		ApproachingTpPct:           1.0,
		LiquidationProximityPct:    5.0,
		FundingSpike:               0.0001,
		VolatilitySpikePct:         1.5,
		VolatilitySpikeWindowTicks: 10,
		TimeCeilingMinutes:         15,
		TriggerCooldownSeconds:     180,
	}
}

func fptr(v float64) *float64 { return &v }

// quietTick builds a tick that fires nothing under testTriggerConfig: a stop
// and TP far from the mark, liquidation far away, flat funding, no PnL move.
func quietTick(ts int64) *models.PositionTick {
	return &models.PositionTick{
		Timestamp:            ts,
		Symbol:               "BTC-PERP",
		Side:                 models.SideLong,
		PositionSize:         2000,
		EntryPrice:           70000,
		MarkPrice:            70000,
		PnlPctOfEquity:       0,
		AccountEquity:        10000,
		LiquidationPrice:     63000,
		DistToLiquidationPct: 10.0,
		FundingRate:          0.00005,
		StopLossPrice:        fptr(67000),
		TakeProfitPrice:      fptr(74000),
	}
}

// quietState marks a recent advisor review so time_ceiling stays silent.
func quietState(nowMs int64) *models.TriggerState {
	state := models.NewTriggerState()
	state.LastAdvisorCheckMs = nowMs
	state.LastFundingRateSign = 1
	return state
}

func firedNames(result EvalResult) []string {
	return TriggerNames(result.Fired)
}

func TestEvaluateTriggers_QuietTickFiresNothing(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})

	assert.Empty(t, result.Fired)
	assert.Empty(t, result.NextState.Cooldowns, "nothing fired, so no cooldowns may be set")
}

func TestEvaluateTriggers_StopMissing(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.StopLossPrice = nil
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})

	require.Len(t, result.Fired, 1)
	assert.Equal(t, TriggerStopMissing, result.Fired[0].Name)
	assert.Equal(t, now, result.NextState.Cooldowns[TriggerStopMissing])
}

func TestEvaluateTriggers_StopMissingCooldown(t *testing.T) {
	now := int64(1_700_000_000_000)
	cfg := testTriggerConfig()
	tick := quietTick(now)
	tick.StopLossPrice = nil
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	state := quietState(now)
	first := EvaluateTriggers(now, tick, buf, state, cfg, ExtraFlags{})
	require.Equal(t, []string{TriggerStopMissing}, firedNames(first))

	// 30s later: still missing, still cooling down (60s named default).
	later := quietTick(now + 30_000)
	later.StopLossPrice = nil
	laterState := first.NextState
	laterState.LastAdvisorCheckMs = later.Timestamp
	second := EvaluateTriggers(later.Timestamp, later, buf, laterState, cfg, ExtraFlags{})
	assert.Empty(t, second.Fired)
	assert.Equal(t, now, second.NextState.Cooldowns[TriggerStopMissing],
		"a suppressed trigger must not refresh its cooldown")

	// 61s after the first firing the cooldown has lapsed.
	final := quietTick(now + 61_000)
	final.StopLossPrice = nil
	finalState := second.NextState
	finalState.LastAdvisorCheckMs = final.Timestamp
	third := EvaluateTriggers(final.Timestamp, final, buf, finalState, cfg, ExtraFlags{})
	assert.Equal(t, []string{TriggerStopMissing}, firedNames(third))
}

func TestEvaluateTriggers_PnlShift(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.PnlPctOfEquity = 2.0
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	state := quietState(now)
	state.LastAdvisorPnlPctEquity = 0

	result := EvaluateTriggers(now, tick, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerPnlShift}, firedNames(result))

	// Shift below the threshold stays quiet.
	small := quietTick(now)
	small.PnlPctOfEquity = 1.0
	result = EvaluateTriggers(now, small, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.Empty(t, result.Fired)

	// The threshold is inclusive: 1.4 stays quiet, exactly 1.5 fires.
	under := quietTick(now)
	under.PnlPctOfEquity = 1.4
	result = EvaluateTriggers(now, under, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.Empty(t, result.Fired)

	at := quietTick(now)
	at.PnlPctOfEquity = 1.5
	result = EvaluateTriggers(now, at, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerPnlShift}, firedNames(result))
}

func TestEvaluateTriggers_PnlShiftIgnoresNaN(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.PnlPctOfEquity = math.NaN()
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	assert.Empty(t, result.Fired)
}

func TestEvaluateTriggers_ApproachingStop(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.StopLossPrice = fptr(69500) // 0.71% below mark, threshold 1.0%

	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerApproachingStop}, firedNames(result))
}

func TestEvaluateTriggers_ApproachingTakeProfit(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.TakeProfitPrice = fptr(70400) // 0.57% above mark

	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerApproachingTP}, firedNames(result))
}

func TestEvaluateTriggers_LiquidationProximity(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.DistToLiquidationPct = 4.0

	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerLiquidationProximity}, firedNames(result))

	// +Inf distance (no liquidation price) never fires.
	tick.DistToLiquidationPct = math.Inf(1)
	result = EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	assert.Empty(t, result.Fired)
}

func TestEvaluateTriggers_FundingFlipAndSpike(t *testing.T) {
	now := int64(1_700_000_000_000)
	buf := NewRollingBuffer(60)

	flip := quietTick(now)
	flip.FundingRate = -0.00005
	buf.Push(*flip)

	state := quietState(now)
	state.LastFundingRateSign = 1
	result := EvaluateTriggers(now, flip, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerFundingFlip}, firedNames(result))

	// A flip straight into a large magnitude raises both funding triggers.
	spike := quietTick(now)
	spike.FundingRate = -0.0002
	result = EvaluateTriggers(now, spike, buf, state, testTriggerConfig(), ExtraFlags{})
	assert.ElementsMatch(t, []string{TriggerFundingFlip, TriggerFundingSpike}, firedNames(result))

	// Sign unknown on the very first tick: no flip, spike still applies.
	fresh := quietState(now)
	fresh.LastFundingRateSign = 0
	result = EvaluateTriggers(now, spike, buf, fresh, testTriggerConfig(), ExtraFlags{})
	assert.Equal(t, []string{TriggerFundingSpike}, firedNames(result))
}

func TestEvaluateTriggers_VolatilitySpike(t *testing.T) {
	// Mark walks from 69800 to 70900 over 10 intervals: a 1.58% move against
	// the 1.5% threshold.
	cfg := testTriggerConfig()
	now := int64(1_700_000_000_000)
	buf := NewRollingBuffer(60)

	state := quietState(now)
	prices := []float64{69800, 69900, 70000, 70100, 70200, 70300, 70400, 70500, 70600, 70800, 70900}
	var result EvalResult
	for i, px := range prices {
		ts := now + int64(i)*30_000
		tick := quietTick(ts)
		tick.MarkPrice = px
		tick.StopLossPrice = fptr(px - 3000)
		tick.TakeProfitPrice = fptr(px + 4000)
		buf.Push(*tick)
		state.LastAdvisorCheckMs = ts
		result = EvaluateTriggers(ts, tick, buf, state, cfg, ExtraFlags{})
		state = result.NextState
		if i < len(prices)-1 {
			require.Empty(t, result.Fired, "tick %d (%.0f) fired early", i, px)
		}
	}

	require.Len(t, result.Fired, 1)
	assert.Equal(t, TriggerVolatilitySpike, result.Fired[0].Name)
	assert.Contains(t, result.Fired[0].Detail, "1.58%")
}

func TestEvaluateTriggers_VolatilitySkippedWhileFilling(t *testing.T) {
	now := int64(1_700_000_000_000)
	buf := NewRollingBuffer(60)

	// Only 3 ticks buffered against a 10-tick window; even a huge move must
	// stay silent.
	for i, px := range []float64{70000, 72000, 75000} {
		tick := quietTick(now + int64(i)*30_000)
		tick.MarkPrice = px
		tick.StopLossPrice = fptr(px - 10000)
		tick.TakeProfitPrice = fptr(px + 10000)
		buf.Push(*tick)
	}

	last := quietTick(now + 60_000)
	last.MarkPrice = 75000
	last.StopLossPrice = fptr(65000)
	last.TakeProfitPrice = fptr(85000)
	result := EvaluateTriggers(last.Timestamp, last, buf, quietState(last.Timestamp), testTriggerConfig(), ExtraFlags{})
	assert.Empty(t, result.Fired)
}

func TestEvaluateTriggers_TimeCeiling(t *testing.T) {
	cfg := testTriggerConfig()
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	// Never reviewed: fires immediately.
	state := models.NewTriggerState()
	state.LastFundingRateSign = 1
	result := EvaluateTriggers(now, tick, buf, state, cfg, ExtraFlags{})
	assert.Equal(t, []string{TriggerTimeCeiling}, firedNames(result))

	// Reviewed 14 minutes ago: quiet.
	state = quietState(now - 14*60_000)
	result = EvaluateTriggers(now, tick, buf, state, cfg, ExtraFlags{})
	assert.Empty(t, result.Fired)

	// Exactly 15 minutes: fires.
	state = quietState(now - 15*60_000)
	result = EvaluateTriggers(now, tick, buf, state, cfg, ExtraFlags{})
	assert.Equal(t, []string{TriggerTimeCeiling}, firedNames(result))
}

func TestEvaluateTriggers_LifecycleFlags(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(),
		ExtraFlags{PositionOpened: true})
	assert.Equal(t, []string{TriggerPositionOpened}, firedNames(result))

	result = EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(),
		ExtraFlags{PositionClosed: true})
	assert.Equal(t, []string{TriggerPositionClosed}, firedNames(result))
}

func TestEvaluateTriggers_PureAndReplayable(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.StopLossPrice = nil
	tick.PnlPctOfEquity = 3.0
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	state := quietState(now)
	state.Cooldowns["old_trigger"] = now - 1

	before := state.Clone()
	first := EvaluateTriggers(now, tick, buf, state, testTriggerConfig(), ExtraFlags{})
	second := EvaluateTriggers(now, tick, buf, state, testTriggerConfig(), ExtraFlags{})

	assert.Equal(t, before, state, "evaluator must not mutate its input state")
	assert.Equal(t, firedNames(first), firedNames(second))
	assert.Equal(t, first.NextState, second.NextState)
}

func TestEvaluateTriggers_OnlyFiredTriggersTouchCooldowns(t *testing.T) {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.StopLossPrice = nil // only stop_missing fires
	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})

	require.Equal(t, []string{TriggerStopMissing}, firedNames(result))
	require.Len(t, result.NextState.Cooldowns, 1)
	_, ok := result.NextState.Cooldowns[TriggerStopMissing]
	assert.True(t, ok)
}

func TestCooldownSecondsFor(t *testing.T) {
	cfg := testTriggerConfig()

	tests := []struct {
		name string
		want int64
	}{
		{TriggerStopMissing, 60},
		{TriggerPnlShift, 180},
		{TriggerFundingFlip, 600},
		{TriggerPositionOpened, 0},
		{"some_future_trigger", 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cooldownSecondsFor(tt.name, cfg))
		})
	}
}

func TestCheckCircuitBreakers(t *testing.T) {
	cfg := config.BreakerConfig{LiqPct: 2.0, LossPct: -5.0}

	tests := []struct {
		name       string
		distToLiq  float64
		pnlPct     float64
		wantTrip   bool
		wantReason string
	}{
		{"healthy", 10.0, 1.0, false, ""},
		{"near liquidation", 1.5, 0, true, "liquidation_proximity<2%"},
		{"deep loss", 10.0, -6.0, true, "loss_exceeds_-5%_of_equity"},
		{"at liq threshold", 2.0, 0, false, ""},
		{"at loss threshold", 10.0, -5.0, false, ""},
		{"non-finite inputs never trip", math.Inf(1), math.NaN(), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick := quietTick(0)
			tick.DistToLiquidationPct = tt.distToLiq
			tick.PnlPctOfEquity = tt.pnlPct

			tripped, reason := CheckCircuitBreakers(tick, cfg)
			assert.Equal(t, tt.wantTrip, tripped)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, reason)
			}
		})
	}
}

func ExampleEvaluateTriggers() {
	now := int64(1_700_000_000_000)
	tick := quietTick(now)
	tick.StopLossPrice = nil

	buf := NewRollingBuffer(60)
	buf.Push(*tick)

	result := EvaluateTriggers(now, tick, buf, quietState(now), testTriggerConfig(), ExtraFlags{})
	for _, f := range result.Fired {
		fmt.Println(f.Name)
	}
	// Output: stop_missing
}
