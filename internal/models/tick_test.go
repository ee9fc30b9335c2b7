package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestSideValid(t *testing.T) {
	assert.True(t, SideLong.Valid())
	assert.True(t, SideShort.Valid())
	assert.False(t, Side("").Valid())
	assert.False(t, Side("sideways").Valid())
}

func TestComputePnlPctOfEquity(t *testing.T) {
	tests := []struct {
		name   string
		pnl    float64
		equity float64
		want   float64
	}{
		{"profit", 150, 10000, 1.5},
		{"loss", -320, 10000, -3.2},
		{"flat", 0, 10000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputePnlPctOfEquity(tt.pnl, tt.equity), 1e-9)
		})
	}

	// Zero or negative equity is clamped rather than dividing by zero.
	assert.False(t, math.IsNaN(ComputePnlPctOfEquity(100, 0)))
	assert.False(t, math.IsNaN(ComputePnlPctOfEquity(100, -500)))
	assert.True(t, ComputePnlPctOfEquity(100, 0) > 0)
}

func TestComputeDistToLiquidationPct(t *testing.T) {
	assert.InDelta(t, 10.0, ComputeDistToLiquidationPct(70000, 63000), 1e-9)
	assert.InDelta(t, 10.0, ComputeDistToLiquidationPct(70000, 77000), 1e-9)

	// Invalid inputs read as infinitely far, so proximity checks stay quiet.
	assert.True(t, math.IsInf(ComputeDistToLiquidationPct(0, 63000), 1))
	assert.True(t, math.IsInf(ComputeDistToLiquidationPct(70000, 0), 1))
	assert.True(t, math.IsInf(ComputeDistToLiquidationPct(70000, -5), 1))
	assert.True(t, math.IsInf(ComputeDistToLiquidationPct(math.NaN(), 63000), 1))
	assert.True(t, math.IsInf(ComputeDistToLiquidationPct(70000, math.Inf(1)), 1))
}

func TestPositionTick_StopAndTakeProfit(t *testing.T) {
	tick := &PositionTick{}
	assert.False(t, tick.HasStop())
	assert.False(t, tick.HasTakeProfit())

	tick.StopLossPrice = fptr(67000)
	tick.TakeProfitPrice = fptr(74000)
	assert.True(t, tick.HasStop())
	assert.True(t, tick.HasTakeProfit())

	tick.StopLossPrice = fptr(math.NaN())
	assert.False(t, tick.HasStop(), "a NaN trigger price counts as absent")
}

func TestPositionTick_Compact(t *testing.T) {
	tick := &PositionTick{
		Timestamp:            1_700_000_000_000,
		Symbol:               "BTC-PERP",
		Side:                 SideLong,
		PositionSize:         2000,
		EntryPrice:           70000,
		MarkPrice:            70700,
		PnlPctOfEquity:       1.5,
		DistToLiquidationPct: 10.0,
		StopLossPrice:        fptr(67000),
	}

	compact := tick.Compact()
	assert.Equal(t, tick.Timestamp, compact.Timestamp)
	assert.Equal(t, tick.Symbol, compact.Symbol)
	assert.Equal(t, tick.MarkPrice, compact.MarkPrice)
	require.NotNil(t, compact.StopLossPrice)
	assert.Equal(t, 67000.0, *compact.StopLossPrice)
	assert.Nil(t, compact.TakeProfitPrice)
}

func TestTriggerState_Clone(t *testing.T) {
	state := NewTriggerState()
	state.LastAdvisorCheckMs = 123
	state.LastAdvisorPnlPctEquity = 1.5
	state.LastFundingRateSign = -1
	state.Cooldowns["pnl_shift"] = 456

	clone := state.Clone()
	require.NotSame(t, state, clone)
	assert.Equal(t, state, clone)

	// Mutating the clone's map must not leak back.
	clone.Cooldowns["pnl_shift"] = 999
	assert.Equal(t, int64(456), state.Cooldowns["pnl_shift"])

	var nilState *TriggerState
	assert.Nil(t, nilState.Clone())
}

func TestNewTriggerState_SeedsZero(t *testing.T) {
	state := NewTriggerState()
	assert.Equal(t, int64(0), state.LastAdvisorCheckMs)
	assert.Equal(t, 0.0, state.LastAdvisorPnlPctEquity)
	assert.Equal(t, 0, state.LastFundingRateSign)
	assert.NotNil(t, state.Cooldowns)
	assert.Empty(t, state.Cooldowns)
}

func TestAdvisoryDecision_Fingerprint(t *testing.T) {
	a := &AdvisoryDecision{Symbol: "BTC-PERP", Timestamp: 1_700_000_000_000}
	b := &AdvisoryDecision{Symbol: "BTC-PERP", Timestamp: 1_700_000_000_000, Outcome: OutcomeFailed}
	c := &AdvisoryDecision{Symbol: "BTC-PERP", Timestamp: 1_700_000_030_000}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "same symbol and tick share a fingerprint")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Equal(t, "heartbeat:BTC-PERP:1700000000000", a.Fingerprint())
}
