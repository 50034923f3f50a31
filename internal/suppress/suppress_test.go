package suppress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func TestTextWindow_SuppressesInsideWindow(t *testing.T) {
	w := NewTextWindow(30 * time.Second)

	assert.True(t, w.Allow("storm warning", t0))
	assert.False(t, w.Allow("storm warning", t0.Add(time.Second)))
	assert.False(t, w.Allow("storm warning", t0.Add(29*time.Second)))
	assert.True(t, w.Allow("other text", t0.Add(time.Second)))
}

func TestTextWindow_AllowsAfterWindowElapsed(t *testing.T) {
	w := NewTextWindow(30 * time.Second)

	assert.True(t, w.Allow("storm warning", t0))
	assert.True(t, w.Allow("storm warning", t0.Add(30*time.Second)))
}

func TestTextWindow_ResetForgetsEverything(t *testing.T) {
	w := NewTextWindow(30 * time.Second)

	assert.True(t, w.Allow("storm warning", t0))
	w.Reset()
	assert.True(t, w.Allow("storm warning", t0.Add(time.Second)))
}

func TestRefreshGate_SingleInFlight(t *testing.T) {
	g := NewRefreshGate(5 * time.Second)

	assert.True(t, g.TryAcquire(t0))
	assert.False(t, g.TryAcquire(t0.Add(time.Second)), "in flight")
	g.Release()
	assert.False(t, g.TryAcquire(t0.Add(2*time.Second)), "interval not elapsed")
	assert.True(t, g.TryAcquire(t0.Add(5*time.Second)))
}

func TestRefreshGate_IntervalCountsFromAcquisition(t *testing.T) {
	g := NewRefreshGate(5 * time.Second)

	assert.True(t, g.TryAcquire(t0))
	g.Release()
	// Release at t0 too; 5s after the acquisition the gate reopens.
	assert.True(t, g.TryAcquire(t0.Add(5*time.Second)))
}
