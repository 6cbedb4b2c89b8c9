package protocol

import (
	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/series"
)

// FullStep is the tagged state of the full combined protocol.
type FullStep int

const (
	FullIdle FullStep = iota
	FullClosingValve
	FullGasStability
	FullHeating
	FullCooldown
	FullRestabilization
	FullFailed
)

func (s FullStep) String() string {
	switch s {
	case FullIdle:
		return "idle"
	case FullClosingValve:
		return "closing valve"
	case FullGasStability:
		return "checking gas stability"
	case FullHeating:
		return "heating"
	case FullCooldown:
		return "cooldown settle"
	case FullRestabilization:
		return "awaiting restabilization"
	case FullFailed:
		return "failed"
	}
	return "unknown"
}

// FullConfig holds the full protocol constants. Durations in seconds.
type FullConfig struct {
	HighTemperature float64
	LowTemperature  float64

	// ValveSettle is the fixed delay after closing the valve.
	ValveSettle float64

	// CooldownSettle is the fixed delay after forcing the heater low.
	CooldownSettle float64

	// StabilityTimeout bounds the gas stability and heating steps;
	// on expiry the step force-advances (degraded success, not an
	// error).
	StabilityTimeout float64

	// RestabilizationTimeout bounds the post-heat watch. On expiry the
	// step force-advances and the latest reference is used for the
	// calculation.
	RestabilizationTimeout float64

	// LowConductance ends heating when the conductance falls below it.
	LowConductance float64

	CellVolume float64

	Gas detect.GasConfig
}

// Full is the six-step combined protocol, layered on the gas detectors
// and the actuator facade. Every step tolerates one failed device call
// and retries before aborting the whole protocol into the failed
// state.
type Full struct {
	cfg    FullConfig
	facade Facade
	gas    *detect.GasTracker

	step      FullStep
	stepStart float64

	entryDone bool
	retried   bool

	initialRef float64
	progress   int
	errMsg     string

	lastResults *Results
}

// NewFull creates an idle full protocol.
func NewFull(cfg FullConfig, facade Facade) *Full {
	return &Full{
		cfg:    cfg,
		facade: facade,
		gas:    detect.NewGasTracker(cfg.Gas),
	}
}

// Step returns the current state.
func (p *Full) Step() FullStep { return p.step }

// Active reports whether the protocol is running. Failed is a reported
// terminal state, not active.
func (p *Full) Active() bool { return p.step != FullIdle && p.step != FullFailed }

// Err returns the failure message, if the protocol aborted.
func (p *Full) Err() string { return p.errMsg }

// Gas exposes the protocol's gas tracker for status display.
func (p *Full) Gas() *detect.GasTracker { return p.gas }

// Start begins the protocol. Precondition violations mutate no state.
func (p *Full) Start(now float64, hasGas bool) error {
	if p.Active() {
		return ErrActive
	}
	if !hasGas {
		return ErrNoGasData
	}
	p.gas.Reset()
	p.step = FullClosingValve
	p.stepStart = now
	p.entryDone = false
	p.retried = false
	p.progress = 0
	p.errMsg = ""
	return nil
}

// enter runs a step's entry action with the one-retry policy. Returns
// true once the action has succeeded; on the second failure the whole
// protocol aborts into the failed state with the heater lowered.
func (p *Full) enter(now float64, action func() error) bool {
	if p.entryDone {
		return true
	}
	if err := action(); err != nil {
		if !p.retried {
			p.retried = true
			return false
		}
		p.fail(err)
		return false
	}
	p.entryDone = true
	p.retried = false
	p.stepStart = now
	return true
}

func (p *Full) fail(err error) {
	// Best effort: always try to leave the heater safe.
	lowerHeater(p.facade, p.cfg.LowTemperature)
	p.step = FullFailed
	p.errMsg = err.Error()
}

func (p *Full) advance(step FullStep, now float64) {
	p.step = step
	p.stepStart = now
	p.entryDone = false
	p.retried = false
}

// Tick advances the machine by one poll.
func (p *Full) Tick(now float64, gasTail []series.Sample, conductance series.Sample, condOK bool, percolation float64) ([]Event, error) {
	switch p.step {
	case FullIdle, FullFailed:
		return nil, nil

	case FullClosingValve:
		if !p.enter(now, p.facade.CloseValve) {
			return p.failedEvents(now), nil
		}
		if now-p.stepStart < p.cfg.ValveSettle {
			return nil, nil
		}
		p.advance(FullGasStability, now)
		p.gas.Reset()
		return []Event{{Name: "VALVE_CLOSED", Time: now}}, nil

	case FullGasStability:
		p.entryDone = true // no entry action
		stable := false
		if len(gasTail) > 0 {
			stable = p.gas.CheckStability(gasTail[len(gasTail)-1])
		}
		timedOut := now-p.stepStart >= p.cfg.StabilityTimeout
		if !stable && !timedOut {
			return nil, nil
		}
		if len(gasTail) > 0 {
			p.initialRef = p.gas.RefValue
			p.gas.SetBase(gasTail[len(gasTail)-1].V)
		}
		p.advance(FullHeating, now)
		name := "GAS_STABLE"
		if timedOut && !stable {
			name = "GAS_STABILITY_TIMEOUT"
		}
		return []Event{{Name: name, Time: now}}, nil

	case FullHeating:
		if !p.enter(now, func() error { return p.facade.SetHeaterSetpoint(p.cfg.HighTemperature) }) {
			return p.failedEvents(now), nil
		}
		// Peak detection runs alongside heating.
		var events []Event
		if p.gas.DetectPeak(gasTail) {
			events = append(events, Event{Name: "PEAK_REACHED", Time: p.gas.PeakTime})
		}
		regenerated := condOK && conductance.V < p.cfg.LowConductance
		timedOut := now-p.stepStart >= p.cfg.StabilityTimeout
		if !regenerated && !timedOut {
			return events, nil
		}
		p.advance(FullCooldown, now)
		name := "REGENERATED"
		if timedOut && !regenerated {
			name = "HEATING_TIMEOUT"
		}
		return append(events, Event{Name: name, Time: now}), nil

	case FullCooldown:
		if !p.enter(now, func() error { return lowerHeater(p.facade, p.cfg.LowTemperature) }) {
			return p.failedEvents(now), nil
		}
		if now-p.stepStart < p.cfg.CooldownSettle {
			return nil, nil
		}
		p.advance(FullRestabilization, now)
		if len(gasTail) > 0 && !p.gas.PeakDetected {
			p.gas.SeedRestabilization(gasTail[len(gasTail)-1])
		}
		return []Event{{Name: "COOLDOWN_DONE", Time: now}}, nil

	case FullRestabilization:
		p.entryDone = true // no entry action
		restabilized := false
		if len(gasTail) > 0 {
			restabilized = p.gas.CheckRestabilization(gasTail[len(gasTail)-1])
		}
		timedOut := now-p.stepStart >= p.cfg.RestabilizationTimeout
		if !restabilized && !timedOut {
			return nil, nil
		}
		// On timeout the state is treated as restabilized for the
		// calculation, using the tracker's current reference.
		finalRef := p.gas.RestabRef
		if len(gasTail) > 0 && timedOut && !restabilized {
			finalRef = gasTail[len(gasTail)-1].V
		}
		r := computeResults(p.initialRef, finalRef, p.cfg.CellVolume, percolation)
		p.lastResults = &r
		p.progress = 100
		p.step = FullIdle
		name := "COMPLETE"
		if timedOut && !restabilized {
			name = "COMPLETE_AFTER_TIMEOUT"
		}
		return []Event{{Name: name, Time: now}}, nil
	}
	return nil, nil
}

// failedEvents reports the abort milestone if the last enter call
// pushed the machine into the failed state.
func (p *Full) failedEvents(now float64) []Event {
	if p.step != FullFailed {
		return nil
	}
	return []Event{{Name: "ABORTED", Time: now}}
}

// Cancel aborts the protocol from any running state: the heater is
// forced low (one fallback retry) and all sub-state resets within the
// same tick.
func (p *Full) Cancel() error {
	if !p.Active() {
		if p.step == FullFailed {
			p.step = FullIdle
			p.errMsg = ""
		}
		return nil
	}
	err := lowerHeater(p.facade, p.cfg.LowTemperature)
	p.step = FullIdle
	p.entryDone = false
	p.retried = false
	p.gas.Reset()
	return err
}

// Progress spreads the six steps across the 0-100 range. The reported
// value never decreases during a run.
func (p *Full) Progress(now float64) int {
	bands := map[FullStep][3]float64{
		FullClosingValve:    {0, 16, p.cfg.ValveSettle},
		FullGasStability:    {16, 33, p.cfg.StabilityTimeout},
		FullHeating:         {33, 67, p.cfg.StabilityTimeout},
		FullCooldown:        {67, 83, p.cfg.CooldownSettle},
		FullRestabilization: {83, 100, p.cfg.RestabilizationTimeout},
	}
	if b, ok := bands[p.step]; ok {
		pr := bandProgress(int(b[0]), int(b[1]), now-p.stepStart, b[2])
		if pr > p.progress {
			p.progress = pr
		}
	}
	return p.progress
}

// Report returns the progress view for collaborators.
func (p *Full) Report(now float64) Report {
	msg := p.step.String()
	if p.step == FullFailed && p.errMsg != "" {
		msg = "failed: " + p.errMsg
	}
	return Report{
		Active:   p.Active(),
		Step:     uint8(p.step),
		Message:  msg,
		Progress: p.Progress(now),
		Results:  p.lastResults,
	}
}
