// Package detect contains the pure signal detectors for the experiment
// engine: conductance increase/stabilization/decrease tracking and
// gas-concentration stability, peak, and restabilization tracking.
// This package has NO external dependencies (no devices, logging, or
// time.Now); all inputs arrive as timestamped samples.
package detect

import "github.com/sweeney/gas-rig/internal/series"

// EventKind names a detector milestone.
type EventKind string

const (
	EventIncrease      EventKind = "INCREASE"
	EventStabilized    EventKind = "STABILIZED"
	EventDecrease      EventKind = "DECREASE"
	EventNewEpisode    EventKind = "NEW_EPISODE"
	EventRestabilized  EventKind = "RESTABILIZED"
	EventGasStable     EventKind = "GAS_STABLE"
	EventGasPeak       EventKind = "GAS_PEAK"
	EventGasRestabled  EventKind = "GAS_RESTABILIZED"
	EventGasRefUpdated EventKind = "GAS_REFERENCE_UPDATED"
)

// Event marks a detector milestone at an experiment-relative time.
type Event struct {
	Kind EventKind
	Time float64
}

// slope computes the least-squares slope (value units per second) over
// the given samples. Returns 0 if fewer than two samples or if all
// timestamps coincide.
func slope(samples []series.Sample) float64 {
	n := float64(len(samples))
	if len(samples) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for _, s := range samples {
		sumX += s.T
		sumY += s.V
		sumXY += s.T * s.V
		sumX2 += s.T * s.T
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
