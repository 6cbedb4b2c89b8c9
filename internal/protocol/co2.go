package protocol

import (
	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/series"
)

// CO2Step is the tagged state of the CO2-driven regeneration protocol.
type CO2Step int

const (
	CO2Idle CO2Step = iota
	CO2CheckingInitialStability
	CO2Heating
	CO2AwaitingRestabilization
)

func (s CO2Step) String() string {
	switch s {
	case CO2Idle:
		return "idle"
	case CO2CheckingInitialStability:
		return "checking initial stability"
	case CO2Heating:
		return "heating"
	case CO2AwaitingRestabilization:
		return "awaiting restabilization"
	}
	return "unknown"
}

// CO2Config holds the CO2 protocol constants.
type CO2Config struct {
	HighTemperature float64
	LowTemperature  float64

	// HeatingDuration is the fixed time the heater stays at the high
	// setpoint, in seconds. Detection may complete earlier; heating
	// never shortens.
	HeatingDuration float64

	// CellVolume enters the deposited-mass estimate.
	CellVolume float64

	Gas detect.GasConfig
}

// CO2 is the CO2-driven regeneration state machine.
type CO2 struct {
	cfg    CO2Config
	facade Facade
	gas    *detect.GasTracker

	step      CO2Step
	stepStart float64

	initialRef    float64
	heaterLowered bool
	progress      int

	lastResults *Results
}

// NewCO2 creates an idle CO2 protocol.
func NewCO2(cfg CO2Config, facade Facade) *CO2 {
	return &CO2{
		cfg:    cfg,
		facade: facade,
		gas:    detect.NewGasTracker(cfg.Gas),
	}
}

// Step returns the current state.
func (p *CO2) Step() CO2Step { return p.step }

// Active reports whether the protocol is running.
func (p *CO2) Active() bool { return p.step != CO2Idle }

// Gas exposes the protocol's gas tracker for status display.
func (p *CO2) Gas() *detect.GasTracker { return p.gas }

// Start begins the protocol. Requires at least one gas sample;
// immediately snapshots and re-asserts the reference resistance
// command. Precondition violations mutate no state.
func (p *CO2) Start(now float64, hasGas bool, refResistance float64) error {
	if p.step != CO2Idle {
		return ErrActive
	}
	if !hasGas {
		return ErrNoGasData
	}
	if err := p.facade.SetReferenceResistance(refResistance); err != nil {
		// One retry before refusing to start.
		if err := p.facade.SetReferenceResistance(refResistance); err != nil {
			return err
		}
	}
	p.gas.Reset()
	p.step = CO2CheckingInitialStability
	p.stepStart = now
	p.heaterLowered = false
	p.progress = 0
	return nil
}

// Tick advances the machine by one poll. gasTail is the recent gas
// concentration window; percolation is the current percolation time
// from the conductance tracker, captured into the results record on
// completion.
func (p *CO2) Tick(now float64, gasTail []series.Sample, percolation float64) ([]Event, error) {
	switch p.step {
	case CO2Idle:
		return nil, nil

	case CO2CheckingInitialStability:
		if len(gasTail) == 0 {
			return nil, nil
		}
		last := gasTail[len(gasTail)-1]
		if !p.gas.CheckStability(last) {
			return nil, nil
		}
		p.initialRef = p.gas.RefValue
		p.gas.SetBase(last.V)
		if err := p.facade.SetHeaterSetpoint(p.cfg.HighTemperature); err != nil {
			if ferr := p.facade.ForceHeaterSetpoint(p.cfg.HighTemperature); ferr != nil {
				// Cannot heat: abort into the safe state.
				p.reset()
				return []Event{{Name: "ABORTED", Time: now}}, err
			}
		}
		p.step = CO2Heating
		p.stepStart = now
		return []Event{
			{Name: "REFERENCE_ACTUALIZED", Time: now},
			{Name: "HEATING_STARTED", Time: now},
		}, nil

	case CO2Heating:
		var events []Event
		// Detection runs concurrently with heating but never shortens
		// the fixed heating duration.
		if p.gas.DetectPeak(gasTail) {
			events = append(events, Event{Name: "PEAK_REACHED", Time: p.gas.PeakTime})
		}
		if p.gas.PeakDetected && len(gasTail) > 0 {
			p.gas.CheckRestabilization(gasTail[len(gasTail)-1])
		}
		if now-p.stepStart < p.cfg.HeatingDuration {
			return events, nil
		}
		if !p.heaterLowered {
			if err := lowerHeater(p.facade, p.cfg.LowTemperature); err != nil {
				p.reset()
				return append(events, Event{Name: "ABORTED", Time: now}), err
			}
			p.heaterLowered = true
			events = append(events, Event{Name: "HEATING_DONE", Time: now})
		}
		if p.gas.Restabilized {
			return append(events, p.complete(now, percolation)), nil
		}
		p.step = CO2AwaitingRestabilization
		p.stepStart = now
		return events, nil

	case CO2AwaitingRestabilization:
		if len(gasTail) == 0 {
			return nil, nil
		}
		var events []Event
		// The peak can still arrive after heating ended.
		if p.gas.DetectPeak(gasTail) {
			events = append(events, Event{Name: "PEAK_REACHED", Time: p.gas.PeakTime})
		}
		if !p.gas.CheckRestabilization(gasTail[len(gasTail)-1]) {
			return events, nil
		}
		return append(events, p.complete(now, percolation)), nil
	}
	return nil, nil
}

// complete computes the derived quantities and resets to Idle.
func (p *CO2) complete(now, percolation float64) Event {
	r := computeResults(p.initialRef, p.gas.RestabRef, p.cfg.CellVolume, percolation)
	p.lastResults = &r
	p.progress = 100
	p.reset()
	return Event{Name: "COMPLETE", Time: now}
}

// Cancel aborts the protocol from any non-Idle state: the heater is
// forced to the low setpoint (one fallback retry) and all sub-state
// resets within the same tick. Cancelling an idle protocol is a no-op.
func (p *CO2) Cancel() error {
	if p.step == CO2Idle {
		return nil
	}
	err := lowerHeater(p.facade, p.cfg.LowTemperature)
	p.reset()
	return err
}

func (p *CO2) reset() {
	p.step = CO2Idle
	p.stepStart = 0
	p.initialRef = 0
	p.heaterLowered = false
	p.gas.Reset()
}

// Progress maps elapsed time within the current state onto the
// state's band (0-33, 33-67, 67-100). The reported value never
// decreases during a run.
func (p *CO2) Progress(now float64) int {
	var pr int
	switch p.step {
	case CO2Idle:
		return p.progress
	case CO2CheckingInitialStability:
		pr = bandProgress(0, 33, now-p.stepStart, p.cfg.Gas.StabilityDuration)
	case CO2Heating:
		pr = bandProgress(33, 67, now-p.stepStart, p.cfg.HeatingDuration)
	case CO2AwaitingRestabilization:
		pr = bandProgress(67, 100, now-p.stepStart, p.cfg.Gas.StabilityDuration)
	}
	if pr > p.progress {
		p.progress = pr
	}
	return p.progress
}

// Report returns the progress view for collaborators.
func (p *CO2) Report(now float64) Report {
	return Report{
		Active:   p.Active(),
		Step:     uint8(p.step),
		Message:  p.step.String(),
		Progress: p.Progress(now),
		Results:  p.lastResults,
	}
}
