package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halpertj/perp_sentry/internal/models"
)

func bufTick(ts int64, mark float64) models.PositionTick {
	return models.PositionTick{Timestamp: ts, Symbol: "BTC-PERP", MarkPrice: mark}
}

func TestRollingBuffer_PushAndEvict(t *testing.T) {
	buf := NewRollingBuffer(3)
	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 3, buf.Capacity())

	buf.Push(bufTick(1, 100))
	buf.Push(bufTick(2, 200))
	buf.Push(bufTick(3, 300))
	assert.Equal(t, 3, buf.Size())

	// Fourth push evicts the oldest.
	buf.Push(bufTick(4, 400))
	assert.Equal(t, 3, buf.Size())

	oldest, ok := buf.At(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), oldest.Timestamp)
}

func TestRollingBuffer_At(t *testing.T) {
	buf := NewRollingBuffer(5)
	buf.Push(bufTick(1, 100))
	buf.Push(bufTick(2, 200))

	newest, ok := buf.At(0)
	require.True(t, ok)
	assert.Equal(t, int64(2), newest.Timestamp)

	prev, ok := buf.At(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), prev.Timestamp)

	_, ok = buf.At(2)
	assert.False(t, ok, "offset beyond buffered ticks")
	_, ok = buf.At(-1)
	assert.False(t, ok)
}

func TestRollingBuffer_Window(t *testing.T) {
	buf := NewRollingBuffer(10)
	for i := int64(1); i <= 5; i++ {
		buf.Push(bufTick(i, float64(i)*100))
	}

	window := buf.Window(3)
	require.Len(t, window, 3)
	assert.Equal(t, int64(3), window[0].Timestamp, "window is oldest first")
	assert.Equal(t, int64(5), window[2].Timestamp)

	// Asking for more than buffered returns everything.
	assert.Len(t, buf.Window(100), 5)
	assert.Nil(t, buf.Window(0))

	// The window is a copy; mutating it leaves the buffer untouched.
	window = buf.Window(5)
	window[0].MarkPrice = -1
	orig, ok := buf.At(4)
	require.True(t, ok)
	assert.Equal(t, 100.0, orig.MarkPrice)
}

func TestRollingBuffer_MinimumCapacity(t *testing.T) {
	buf := NewRollingBuffer(0)
	assert.Equal(t, 1, buf.Capacity())

	buf.Push(bufTick(1, 100))
	buf.Push(bufTick(2, 200))
	assert.Equal(t, 1, buf.Size())

	only, ok := buf.At(0)
	require.True(t, ok)
	assert.Equal(t, int64(2), only.Timestamp)
}
