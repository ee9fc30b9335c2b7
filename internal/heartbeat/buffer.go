// Package heartbeat implements the position-management heartbeat engine: the
// per-symbol polling watcher, the significance triggers, the hard circuit
// breakers, and the process-wide supervisor.
package heartbeat

import "github.com/halpertj/perp_sentry/internal/models"

// RollingBuffer is a fixed-capacity FIFO of PositionTicks for one symbol.
// Oldest ticks are evicted on overflow. It is owned exclusively by a single
// watcher and needs no locking.
type RollingBuffer struct {
	ticks    []models.PositionTick
	capacity int
}

// NewRollingBuffer creates a buffer with the given capacity (minimum 1).
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingBuffer{
		ticks:    make([]models.PositionTick, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a tick, evicting the oldest when full.
func (b *RollingBuffer) Push(tick models.PositionTick) {
	if len(b.ticks) == b.capacity {
		copy(b.ticks, b.ticks[1:])
		b.ticks[len(b.ticks)-1] = tick
		return
	}
	b.ticks = append(b.ticks, tick)
}

// Size returns the number of buffered ticks.
func (b *RollingBuffer) Size() int {
	return len(b.ticks)
}

// Capacity returns the configured bound.
func (b *RollingBuffer) Capacity() int {
	return b.capacity
}

// At returns the tick offsetFromEnd positions back from the newest tick;
// At(0) is the most recent. The second return is false when out of range.
func (b *RollingBuffer) At(offsetFromEnd int) (models.PositionTick, bool) {
	idx := len(b.ticks) - 1 - offsetFromEnd
	if offsetFromEnd < 0 || idx < 0 {
		return models.PositionTick{}, false
	}
	return b.ticks[idx], true
}

// Window returns a copy of the last n ticks, oldest first. When fewer than n
// ticks are buffered, all of them are returned.
func (b *RollingBuffer) Window(n int) []models.PositionTick {
	if n <= 0 {
		return nil
	}
	if n > len(b.ticks) {
		n = len(b.ticks)
	}
	out := make([]models.PositionTick, n)
	copy(out, b.ticks[len(b.ticks)-n:])
	return out
}
