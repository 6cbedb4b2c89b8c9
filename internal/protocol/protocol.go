// Package protocol implements the regeneration protocol state
// machines: the CO2-driven protocol, the resistance-driven protocol,
// and the full combined protocol. Each machine is tick-driven,
// single-threaded, and expressed as a tagged step variant so that
// illegal flag combinations cannot exist. Actuator commands flow
// through the Facade supplied by the engine; on exit or cancellation
// every machine returns the heater to the low setpoint, retrying once
// through the raw fallback path.
package protocol

import (
	"errors"
	"fmt"
)

// Kind identifies a protocol.
type Kind string

const (
	KindCO2        Kind = "co2"
	KindResistance Kind = "resistance"
	KindFull       Kind = "full"
)

// Facade is the actuator surface the protocols drive. The engine
// implements it over the device capabilities and owns idempotence of
// repeated setpoint writes.
type Facade interface {
	SetHeaterSetpoint(celsius float64) error
	ForceHeaterSetpoint(celsius float64) error
	SetReferenceResistance(ohms float64) error
	OpenValve() error
	CloseValve() error
}

// Molar-volume constant and carbon molar mass used in the deposited
// mass estimate.
const (
	molarVolume = 24.5
	carbonMass  = 12.0
)

// Results is the derived-quantity record computed on protocol
// completion.
type Results struct {
	DeltaConcentration float64
	EstimatedMass      float64
	PercolationTime    float64
}

// computeResults derives the concentration delta and estimated
// deposited mass from the initial and restabilized references.
func computeResults(initialRef, finalRef, cellVolume, percolation float64) Results {
	delta := finalRef - initialRef
	return Results{
		DeltaConcentration: delta,
		EstimatedMass:      delta * cellVolume / molarVolume * carbonMass,
		PercolationTime:    percolation,
	}
}

// Event marks a protocol milestone at an experiment-relative time.
type Event struct {
	Name string
	Time float64
}

// Report is the progress view exposed to collaborators.
type Report struct {
	Active   bool
	Step     uint8
	Message  string
	Progress int
	Results  *Results
}

// Precondition violations are rejected synchronously with no state
// mutation.
var (
	ErrActive            = errors.New("protocol: already running")
	ErrNoGasData         = errors.New("protocol: no gas data available")
	ErrDeviceUnavailable = errors.New("protocol: required device unavailable")
	ErrNotRunning        = errors.New("protocol: not running")
)

// lowerHeater drives the heater to the low setpoint, retrying once
// through the raw fallback path if the normal write fails.
func lowerHeater(f Facade, low float64) error {
	if err := f.SetHeaterSetpoint(low); err != nil {
		if ferr := f.ForceHeaterSetpoint(low); ferr != nil {
			return fmt.Errorf("lower heater: %w", err)
		}
	}
	return nil
}

// bandProgress maps elapsed time inside a state onto its progress
// band, clamped to the band's upper bound.
func bandProgress(lo, hi int, elapsed, total float64) int {
	if total <= 0 || elapsed >= total {
		return hi
	}
	if elapsed < 0 {
		return lo
	}
	p := lo + int(float64(hi-lo)*elapsed/total)
	if p > hi {
		p = hi
	}
	return p
}
