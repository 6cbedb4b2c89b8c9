// Package auto implements the automatic-mode orchestrator for
// unattended operation: detect a conductance rise, wait for it to
// stabilize, close the valve, confirm gas stability, run a thermal
// regeneration, and reopen the valve for the next cycle.
//
// The original rig blocked inside its poll step while waiting on the
// valve and on gas stability. Here every wait is a state with an
// explicit "waiting since" timestamp, driven by the same external tick
// as the rest of the engine, so nothing ever sleeps.
package auto

import (
	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/protocol"
	"github.com/sweeney/gas-rig/internal/series"
)

// Step is the orchestrator state.
type Step int

const (
	Disabled Step = iota
	Monitoring
	ClosingValve
	ValveSettle
	ReassertReference
	GasStabilityWait
	Heating
	Cooldown
	AwaitNextCycle
)

func (s Step) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Monitoring:
		return "monitoring"
	case ClosingValve:
		return "closing valve"
	case ValveSettle:
		return "valve settle"
	case ReassertReference:
		return "reasserting reference"
	case GasStabilityWait:
		return "gas stability wait"
	case Heating:
		return "heating"
	case Cooldown:
		return "cooldown"
	case AwaitNextCycle:
		return "awaiting next cycle"
	}
	return "unknown"
}

// Config holds the orchestrator constants. Durations in seconds.
type Config struct {
	HighTemperature float64
	LowTemperature  float64

	// ValveSettle is the fixed wait after commanding the valve closed.
	ValveSettle float64

	// StabilityTimeout bounds the gas-stability wait.
	StabilityTimeout float64

	// HeatingTimeout bounds the regeneration heating window.
	HeatingTimeout float64

	// NearZeroConductance is the "regeneration complete" threshold.
	NearZeroConductance float64

	// ReferenceTolerance is the allowed deviation, in ohms, between
	// the measured resistance and the reference before committing to
	// heating.
	ReferenceTolerance float64

	Gas detect.GasConfig
}

// Inputs carries one tick's worth of detector and sensor state into
// the orchestrator.
type Inputs struct {
	// Cond is the shared conductance tracker, already updated by the
	// engine this tick.
	Cond *detect.ConductanceTracker

	// GasTail is the recent gas-concentration window.
	GasTail []series.Sample

	// Conductance is the latest conductance sample, if CondOK.
	Conductance series.Sample
	CondOK      bool

	// Resistance is the latest resistance reading, if ResOK.
	Resistance float64
	ResOK      bool

	// ReferenceResistance is the operator-set reference value.
	ReferenceResistance float64
}

// Controller is the automatic-mode state machine.
type Controller struct {
	cfg    Config
	facade protocol.Facade
	gas    *detect.GasTracker

	step         Step
	waitingSince float64
	retried      bool
	cycles       int
}

// New creates a disabled controller.
func New(cfg Config, facade protocol.Facade) *Controller {
	return &Controller{
		cfg:    cfg,
		facade: facade,
		gas:    detect.NewGasTracker(cfg.Gas),
	}
}

// Step returns the current state.
func (c *Controller) Step() Step { return c.step }

// Enabled reports whether automatic mode is running.
func (c *Controller) Enabled() bool { return c.step != Disabled }

// Cycles returns the number of completed regeneration cycles.
func (c *Controller) Cycles() int { return c.cycles }

// Start enables automatic mode.
func (c *Controller) Start(now float64) error {
	if c.step != Disabled {
		return protocol.ErrActive
	}
	c.step = Monitoring
	c.waitingSince = now
	c.retried = false
	return nil
}

// Stop disables automatic mode, leaving the heater at the low
// setpoint. The write happens from every enabled state: the heater
// may be high in Heating, Cooldown, or mid-failure, and a redundant
// low write is idempotent through the engine's setpoint cache.
func (c *Controller) Stop() error {
	if c.step == Disabled {
		return nil
	}
	err := c.lowerHeater()
	c.step = Disabled
	c.retried = false
	return err
}

func (c *Controller) lowerHeater() error {
	if err := c.facade.SetHeaterSetpoint(c.cfg.LowTemperature); err != nil {
		if ferr := c.facade.ForceHeaterSetpoint(c.cfg.LowTemperature); ferr != nil {
			return err
		}
	}
	return nil
}

// try runs an actuator call with the one-retry policy: the first
// failure is tolerated and retried next tick, a second consecutive
// failure is returned to the caller.
func (c *Controller) try(action func() error) (ok bool, err error) {
	if e := action(); e != nil {
		if !c.retried {
			c.retried = true
			return false, nil
		}
		c.retried = false
		return false, e
	}
	c.retried = false
	return true, nil
}

// Tick advances the orchestrator by one poll.
func (c *Controller) Tick(now float64, in Inputs) ([]protocol.Event, error) {
	switch c.step {
	case Disabled:
		return nil, nil

	case Monitoring:
		// The conductance detectors run in the engine; commit to a
		// regeneration cycle once the rise has stabilized.
		if in.Cond == nil || !in.Cond.Stabilized {
			return nil, nil
		}
		c.step = ClosingValve
		return []protocol.Event{{Name: "AUTO_STABILIZED", Time: now}}, nil

	case ClosingValve:
		ok, err := c.try(c.facade.CloseValve)
		if err != nil {
			c.step = Monitoring
			return []protocol.Event{{Name: "AUTO_VALVE_ERROR", Time: now}}, err
		}
		if !ok {
			return nil, nil
		}
		c.step = ValveSettle
		c.waitingSince = now
		return []protocol.Event{{Name: "AUTO_VALVE_CLOSED", Time: now}}, nil

	case ValveSettle:
		if now-c.waitingSince < c.cfg.ValveSettle {
			return nil, nil
		}
		c.step = ReassertReference
		return nil, nil

	case ReassertReference:
		if !in.ResOK {
			return nil, nil
		}
		ok, err := c.try(func() error {
			return c.facade.SetReferenceResistance(in.ReferenceResistance)
		})
		if err != nil {
			c.step = Monitoring
			return []protocol.Event{{Name: "AUTO_REFERENCE_ERROR", Time: now}}, err
		}
		if !ok {
			return nil, nil
		}
		if absf(in.Resistance-in.ReferenceResistance) > c.cfg.ReferenceTolerance {
			// Outside the band: keep re-reading and re-asserting.
			return nil, nil
		}
		c.gas.Reset()
		c.step = GasStabilityWait
		c.waitingSince = now
		return []protocol.Event{{Name: "AUTO_REFERENCE_OK", Time: now}}, nil

	case GasStabilityWait:
		stable := false
		if len(in.GasTail) > 0 {
			stable = c.gas.CheckStability(in.GasTail[len(in.GasTail)-1])
		}
		if !stable && now-c.waitingSince < c.cfg.StabilityTimeout {
			return nil, nil
		}
		ok, err := c.try(func() error {
			return c.facade.SetHeaterSetpoint(c.cfg.HighTemperature)
		})
		if err != nil {
			c.step = Monitoring
			return []protocol.Event{{Name: "AUTO_HEATER_ERROR", Time: now}}, err
		}
		if !ok {
			return nil, nil
		}
		c.step = Heating
		c.waitingSince = now
		return []protocol.Event{{Name: "AUTO_HEATING", Time: now}}, nil

	case Heating:
		regenerated := in.CondOK && in.Conductance.V < c.cfg.NearZeroConductance
		if !regenerated && now-c.waitingSince < c.cfg.HeatingTimeout {
			return nil, nil
		}
		c.step = Cooldown
		return nil, nil

	case Cooldown:
		// Unconditional: the heater always comes back down.
		ok, err := c.try(c.lowerHeater)
		if err != nil {
			c.step = Monitoring
			return []protocol.Event{{Name: "AUTO_HEATER_ERROR", Time: now}}, err
		}
		if !ok {
			return nil, nil
		}
		c.step = AwaitNextCycle
		c.waitingSince = now
		return []protocol.Event{{Name: "AUTO_COOLDOWN", Time: now}}, nil

	case AwaitNextCycle:
		// A second "conductance near zero" confirmation after cooldown
		// triggers the valve cycle for the next run.
		if !in.CondOK || in.Conductance.V >= c.cfg.NearZeroConductance {
			return nil, nil
		}
		ok, err := c.try(c.facade.OpenValve)
		if err != nil {
			c.step = Monitoring
			return []protocol.Event{{Name: "AUTO_VALVE_ERROR", Time: now}}, err
		}
		if !ok {
			return nil, nil
		}
		c.cycles++
		c.step = Monitoring
		return []protocol.Event{{Name: "AUTO_CYCLE_COMPLETE", Time: now}}, nil
	}
	return nil, nil
}

// Report returns the progress view for collaborators. Automatic mode
// is cyclic, so progress reflects position in the current cycle.
func (c *Controller) Report(now float64) protocol.Report {
	steps := map[Step]int{
		Monitoring:        5,
		ClosingValve:      20,
		ValveSettle:       30,
		ReassertReference: 40,
		GasStabilityWait:  55,
		Heating:           75,
		Cooldown:          90,
		AwaitNextCycle:    95,
	}
	return protocol.Report{
		Active:   c.Enabled(),
		Step:     uint8(c.step),
		Message:  c.step.String(),
		Progress: steps[c.step],
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
