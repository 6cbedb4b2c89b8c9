package detect

import "github.com/sweeney/gas-rig/internal/series"

// GasConfig holds the tuning constants for the gas-concentration
// detectors. Concentrations in ppm, durations in seconds.
type GasConfig struct {
	// StabilityTolerance is the maximum deviation from the reference
	// value that still counts as stable.
	StabilityTolerance float64

	// StabilityDuration is how long the signal must stay within
	// tolerance before it counts as stable.
	StabilityDuration float64

	// PeakRise is the minimum rise over the base value that arms the
	// peak detector.
	PeakRise float64

	// PeakDrop is how far below the running maximum a sample must fall
	// (with a negative short-term slope) to be called the peak.
	PeakDrop float64
}

// GasTracker tracks gas-concentration stability, the concentration
// peak during heating, and restabilization after the peak.
type GasTracker struct {
	cfg GasConfig

	// Stability tracker. The reference resets whenever a sample
	// deviates by more than the tolerance.
	RefValue float64
	RefTime  float64
	refSet   bool
	Stable   bool

	// Peak detection.
	BaseValue    float64
	baseSet      bool
	armed        bool
	runningMax   float64
	runningMaxT  float64
	PeakDetected bool
	PeakValue    float64
	PeakTime     float64

	// Restabilization tracker, referenced against the peak-time value.
	RestabRef    float64
	RestabTime   float64
	restabSeeded bool
	Restabilized bool

	RestabilizationTime float64
}

// NewGasTracker creates a tracker with the given configuration.
func NewGasTracker(cfg GasConfig) *GasTracker {
	return &GasTracker{cfg: cfg}
}

// CheckStability maintains the reference value: a sample within
// tolerance accumulates stable time, a sample outside resets the
// reference and restarts the timer. Returns true once the accumulated
// stable duration meets the threshold (and keeps returning true until
// the next excursion).
func (g *GasTracker) CheckStability(s series.Sample) bool {
	if !g.refSet || absf(s.V-g.RefValue) > g.cfg.StabilityTolerance {
		g.RefValue = s.V
		g.RefTime = s.T
		g.refSet = true
		g.Stable = false
		return false
	}
	if s.T-g.RefTime >= g.cfg.StabilityDuration {
		g.Stable = true
	}
	return g.Stable
}

// SetBase records the base concentration against which a rise is
// measured, and re-arms peak detection.
func (g *GasTracker) SetBase(v float64) {
	g.BaseValue = v
	g.baseSet = true
	g.armed = false
	g.runningMax = v
	g.PeakDetected = false
}

// DetectPeak looks for the concentration peak: once a rise of at least
// PeakRise over the base has been seen, a later sample that sits at
// least PeakDrop below the running maximum and shows a negative slope
// over the last three samples is the peak. The restabilization tracker
// is seeded immediately with the peak-adjacent value. Returns true on
// the tick the peak is found.
func (g *GasTracker) DetectPeak(tail []series.Sample) bool {
	if !g.baseSet || g.PeakDetected || len(tail) == 0 {
		return false
	}
	s := tail[len(tail)-1]
	if s.V > g.runningMax {
		g.runningMax = s.V
		g.runningMaxT = s.T
	}
	if !g.armed {
		if g.runningMax-g.BaseValue >= g.cfg.PeakRise {
			g.armed = true
		}
		return false
	}
	if g.runningMax-s.V < g.cfg.PeakDrop {
		return false
	}
	if len(tail) < 3 {
		return false
	}
	if slope(tail[len(tail)-3:]) >= 0 {
		return false
	}
	g.PeakDetected = true
	g.PeakValue = g.runningMax
	g.PeakTime = g.runningMaxT
	g.RestabRef = s.V
	g.RestabTime = s.T
	g.restabSeeded = true
	g.Restabilized = false
	return true
}

// CheckRestabilization mirrors CheckStability but runs against the
// reference seeded at the peak. Returns true once restabilized.
func (g *GasTracker) CheckRestabilization(s series.Sample) bool {
	if !g.restabSeeded || absf(s.V-g.RestabRef) > g.cfg.StabilityTolerance {
		g.RestabRef = s.V
		g.RestabTime = s.T
		g.restabSeeded = true
		g.Restabilized = false
		return false
	}
	if s.T-g.RestabTime >= g.cfg.StabilityDuration {
		if !g.Restabilized {
			g.RestabilizationTime = s.T
		}
		g.Restabilized = true
	}
	return g.Restabilized
}

// SeedRestabilization primes the restabilization tracker explicitly,
// for protocols that treat a timeout as the restabilization point.
func (g *GasTracker) SeedRestabilization(s series.Sample) {
	g.RestabRef = s.V
	g.RestabTime = s.T
	g.restabSeeded = true
	g.Restabilized = false
}

// Reset clears all tracker state.
func (g *GasTracker) Reset() {
	cfg := g.cfg
	*g = GasTracker{cfg: cfg}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
