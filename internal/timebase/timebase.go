// Package timebase tracks per-channel experiment clocks. Each channel has
// its own start time and accumulated pause duration so that sample
// timestamps stay monotonic and offset-correct across start/stop cycles.
// Time is always injectable via time.Time parameters.
package timebase

import (
	"time"

	"github.com/sweeney/gas-rig/internal/series"
)

type clock struct {
	started     bool
	start       time.Time
	paused      bool
	pauseStart  time.Time
	pausedTotal time.Duration
}

// Base holds one clock per channel.
// Not safe for concurrent use; the engine is single-threaded.
type Base struct {
	clocks [series.NumChannels]clock
}

// New creates a Base with all channels unstarted.
func New() *Base {
	return &Base{}
}

// Start records the channel's start time. Subsequent calls are no-ops:
// the first sample defines the origin.
func (b *Base) Start(ch series.Channel, now time.Time) {
	if !ch.Valid() {
		return
	}
	c := &b.clocks[ch]
	if c.started {
		return
	}
	c.started = true
	c.start = now
}

// Started reports whether the channel clock has an origin.
func (b *Base) Started(ch series.Channel) bool {
	return ch.Valid() && b.clocks[ch].started
}

// Pause freezes the channel clock. Calling Pause on an already-paused
// channel is a no-op, so elapsed pause time is never double-counted.
func (b *Base) Pause(ch series.Channel, now time.Time) {
	if !ch.Valid() {
		return
	}
	c := &b.clocks[ch]
	if !c.started || c.paused {
		return
	}
	c.paused = true
	c.pauseStart = now
}

// Resume folds the elapsed pause into the accumulated total. Calling
// Resume without a preceding Pause is a no-op.
func (b *Base) Resume(ch series.Channel, now time.Time) {
	if !ch.Valid() {
		return
	}
	c := &b.clocks[ch]
	if !c.paused {
		return
	}
	c.paused = false
	c.pausedTotal += now.Sub(c.pauseStart)
}

// Paused reports whether the channel clock is currently paused.
func (b *Base) Paused(ch series.Channel) bool {
	return ch.Valid() && b.clocks[ch].paused
}

// Stamp computes the relative timestamp for a sample taken at now:
// now - start - accumulated pause, in seconds. While paused, the stamp
// is frozen at the pause point. Returns false if the channel was never
// started.
func (b *Base) Stamp(ch series.Channel, now time.Time) (float64, bool) {
	if !ch.Valid() {
		return 0, false
	}
	c := &b.clocks[ch]
	if !c.started {
		return 0, false
	}
	paused := c.pausedTotal
	if c.paused {
		paused += now.Sub(c.pauseStart)
	}
	return (now.Sub(c.start) - paused).Seconds(), true
}

// Reset clears the channel's start time and accumulated pause without
// disturbing the other channels.
func (b *Base) Reset(ch series.Channel) {
	if !ch.Valid() {
		return
	}
	b.clocks[ch] = clock{}
}
