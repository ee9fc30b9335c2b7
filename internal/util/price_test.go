package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        1.2345,
			tick:     0.01,
			expected: 1.23,
		},
		{
			name:     "tie rounds away from zero",
			x:        1.235,
			tick:     0.01,
			expected: 1.24,
		},
		{
			name:     "larger tick size",
			x:        1.27,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "exact multiple",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}

	t.Run("zero tick returns input", func(t *testing.T) {
		input := 1.2345
		if result := RoundToTick(input, 0); result != input {
			t.Errorf("RoundToTick(%v, 0) = %v, expected %v", input, result, input)
		}
	})
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected bool
	}{
		{"ordinary value", 2080.5, true},
		{"zero", 0, true},
		{"negative", -5.1, true},
		{"NaN", math.NaN(), false},
		{"positive infinity", math.Inf(1), false},
		{"negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFinite(tt.x); got != tt.expected {
				t.Errorf("IsFinite(%v) = %v, expected %v", tt.x, got, tt.expected)
			}
		})
	}
}

func TestPctDistance(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		ref      float64
		expected float64
	}{
		{"one percent below", 2000, 1980, 1.0},
		{"one percent above", 2000, 2020, 1.0},
		{"equal prices", 70000, 70000, 0},
		{"short stop distance", 70900, 71500, 0.8462623413258109},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PctDistance(tt.price, tt.ref)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("PctDistance(%v, %v) = %v, expected %v", tt.price, tt.ref, result, tt.expected)
			}
		})
	}

	t.Run("bad inputs map to +Inf", func(t *testing.T) {
		if !math.IsInf(PctDistance(math.NaN(), 100), 1) {
			t.Error("expected +Inf for NaN price")
		}
		if !math.IsInf(PctDistance(100, math.Inf(1)), 1) {
			t.Error("expected +Inf for infinite reference")
		}
		if !math.IsInf(PctDistance(0, 100), 1) {
			t.Error("expected +Inf for zero price")
		}
	})
}

func TestSign(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected int
	}{
		{"positive funding", 0.0002, 1},
		{"negative funding", -0.0003, -1},
		{"zero", 0, 0},
		{"NaN", math.NaN(), 0},
		{"infinity", math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sign(tt.x); got != tt.expected {
				t.Errorf("Sign(%v) = %d, expected %d", tt.x, got, tt.expected)
			}
		})
	}
}
