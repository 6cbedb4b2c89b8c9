package detect

import (
	"math"

	"github.com/sweeney/gas-rig/internal/series"
)

// ConductanceConfig holds the tuning constants for the conductance
// detectors. Units: slopes in conductance units per second, durations
// in seconds.
type ConductanceConfig struct {
	// MinSlope and MaxSlope bound the detection band for a conductance
	// increase. Both are positive.
	MinSlope float64
	MaxSlope float64

	// Window is the number of trailing samples used for the
	// least-squares slope. At least 10.
	Window int

	// LocalWindow is the width in seconds of the sliding window used
	// by the stabilization detector (half-width = LocalWindow / 2).
	LocalWindow float64

	// StabilityDuration is how long the slope must stay flat after the
	// maximum slope before the signal counts as stabilized.
	StabilityDuration float64

	// DecreaseThreshold is the absolute conductance floor below which a
	// post-treatment decrease is declared.
	DecreaseThreshold float64
}

// ConductanceTracker tracks the lifecycle of a conductance episode:
// increase onset, stabilization, post-treatment decrease, and
// restabilization. The first detected increase onset ("percolation
// time") is preserved across transient resets; only a genuine new
// episode after a decrease may move it.
type ConductanceTracker struct {
	cfg ConductanceConfig

	IncreaseDetected bool
	Stabilized       bool

	// IncreaseTime is valid only when HasIncreaseTime is set.
	IncreaseTime    float64
	HasIncreaseTime bool

	StabilizationTime float64

	MaxSlope     float64
	MaxSlopeTime float64

	DecreaseDetected bool
	DecreaseTime     float64

	Restabilized        bool
	RestabilizationTime float64
}

// NewConductanceTracker creates a tracker with the given configuration.
func NewConductanceTracker(cfg ConductanceConfig) *ConductanceTracker {
	if cfg.Window < 10 {
		cfg.Window = 10
	}
	return &ConductanceTracker{cfg: cfg}
}

// Update runs the detectors in episode order over the channel buffer
// and returns any milestones crossed this tick. Callable every tick;
// each sub-detector is a no-op once its condition holds.
func (c *ConductanceTracker) Update(set *series.Set) []Event {
	var events []Event

	if !c.IncreaseDetected {
		if c.DecreaseDetected {
			if ev := c.checkNewEpisode(set); ev != nil {
				events = append(events, *ev)
			}
		} else {
			if ev := c.checkIncrease(set); ev != nil {
				events = append(events, *ev)
			}
		}
	}
	if c.IncreaseDetected && !c.Stabilized {
		if ev := c.checkStabilization(set); ev != nil {
			events = append(events, *ev)
		}
	}
	if c.Stabilized {
		if ev := c.checkDecrease(set); ev != nil {
			events = append(events, *ev)
		}
	}
	if c.DecreaseDetected && !c.Restabilized {
		if ev := c.checkRestabilization(set); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// checkIncrease fires once when the least-squares slope over the
// trailing window falls inside [MinSlope, MaxSlope]. The increase time
// is recorded only if unset: re-detection after a transient reset
// refreshes the max slope but never moves the percolation time.
func (c *ConductanceTracker) checkIncrease(set *series.Set) *Event {
	tail := set.Tail(series.Conductance, c.cfg.Window)
	if len(tail) < c.cfg.Window {
		return nil
	}
	s := slope(tail)
	if s < c.cfg.MinSlope || s > c.cfg.MaxSlope {
		return nil
	}
	now := tail[len(tail)-1].T
	c.IncreaseDetected = true
	c.MaxSlope = s
	c.MaxSlopeTime = now
	if !c.HasIncreaseTime {
		c.IncreaseTime = now
		c.HasIncreaseTime = true
	}
	return &Event{Kind: EventIncrease, Time: now}
}

// checkStabilization applies the two-stage peak-then-flat test: track
// the maximum local slope, then fire once the slope has stayed below
// MinSlope/2 for StabilityDuration after the peak. The two stages keep
// a monotonically slow rise from counting as stable.
func (c *ConductanceTracker) checkStabilization(set *series.Set) *Event {
	if set.Len(series.Conductance) < c.cfg.Window {
		return nil
	}
	last, _ := set.Last(series.Conductance)
	local := set.Since(series.Conductance, last.T-c.cfg.LocalWindow)
	if len(local) < 2 {
		return nil
	}
	s := slope(local)
	if s > c.MaxSlope {
		c.MaxSlope = s
		c.MaxSlopeTime = last.T
	}
	if last.T-c.MaxSlopeTime < c.cfg.StabilityDuration {
		return nil
	}
	if math.Abs(s) >= c.cfg.MinSlope/2 {
		return nil
	}
	c.Stabilized = true
	c.StabilizationTime = last.T
	return &Event{Kind: EventStabilized, Time: last.T}
}

// checkDecrease declares a post-treatment decrease when the latest
// conductance sample drops below the absolute threshold. The increase
// and stabilization flags reset for the next episode; the percolation
// time is a property of the whole experiment and survives.
func (c *ConductanceTracker) checkDecrease(set *series.Set) *Event {
	last, ok := set.Last(series.Conductance)
	if !ok || last.V >= c.cfg.DecreaseThreshold {
		return nil
	}
	c.DecreaseDetected = true
	c.DecreaseTime = last.T
	c.IncreaseDetected = false
	c.Stabilized = false
	c.Restabilized = false
	return &Event{Kind: EventDecrease, Time: last.T}
}

// checkNewEpisode watches for the slope re-entering the increase band
// after a decrease. Unlike checkIncrease this is a true new episode:
// the increase time moves forward.
func (c *ConductanceTracker) checkNewEpisode(set *series.Set) *Event {
	tail := set.Tail(series.Conductance, c.cfg.Window)
	if len(tail) < c.cfg.Window {
		return nil
	}
	// Only consider samples taken after the decrease.
	if tail[0].T < c.DecreaseTime {
		return nil
	}
	s := slope(tail)
	if s < c.cfg.MinSlope || s > c.cfg.MaxSlope {
		return nil
	}
	now := tail[len(tail)-1].T
	c.IncreaseDetected = true
	c.DecreaseDetected = false
	c.IncreaseTime = now
	c.HasIncreaseTime = true
	c.MaxSlope = s
	c.MaxSlopeTime = now
	return &Event{Kind: EventNewEpisode, Time: now}
}

// checkRestabilization declares the channel restabilized when, after a
// decrease, the local slope stays near zero for the stability duration
// measured from the decrease time.
func (c *ConductanceTracker) checkRestabilization(set *series.Set) *Event {
	last, ok := set.Last(series.Conductance)
	if !ok {
		return nil
	}
	if last.T-c.DecreaseTime < c.cfg.StabilityDuration {
		return nil
	}
	local := set.Since(series.Conductance, last.T-c.cfg.LocalWindow)
	if len(local) < 2 {
		return nil
	}
	if math.Abs(slope(local)) >= c.cfg.MinSlope/2 {
		return nil
	}
	c.Restabilized = true
	c.RestabilizationTime = last.T
	return &Event{Kind: EventRestabilized, Time: last.T}
}

// Reset clears all episode state, including the percolation time.
// Used when the operator resets the conductance channel.
func (c *ConductanceTracker) Reset() {
	cfg := c.cfg
	*c = ConductanceTracker{cfg: cfg}
}
