package protocol

// ResistanceStep is the tagged state of the resistance-driven
// regeneration protocol.
type ResistanceStep int

const (
	ResistanceIdle ResistanceStep = iota
	ResistanceHeating
	ResistanceTargetReached
)

func (s ResistanceStep) String() string {
	switch s {
	case ResistanceIdle:
		return "idle"
	case ResistanceHeating:
		return "heating"
	case ResistanceTargetReached:
		return "target reached"
	}
	return "unknown"
}

// ResistanceConfig holds the resistance protocol constants.
type ResistanceConfig struct {
	HighTemperature float64
	LowTemperature  float64

	// TargetOhms is the high-resistance threshold that ends heating.
	TargetOhms float64
}

// Resistance is the two-state resistance-driven regeneration machine:
// heat until the sensing element resistance exceeds the target, then
// drop the heater and stay terminal until explicitly restarted.
// Mutual exclusion with the CO2 protocol is enforced by the engine.
type Resistance struct {
	cfg    ResistanceConfig
	facade Facade

	step      ResistanceStep
	stepStart float64
	lowered   bool
	progress  int
}

// NewResistance creates an idle resistance protocol.
func NewResistance(cfg ResistanceConfig, facade Facade) *Resistance {
	return &Resistance{cfg: cfg, facade: facade}
}

// Step returns the current state.
func (p *Resistance) Step() ResistanceStep { return p.step }

// Active reports whether the protocol is heating. TargetReached is
// terminal, not active.
func (p *Resistance) Active() bool { return p.step == ResistanceHeating }

// Start begins heating. Both the thermal actuator and the resistance
// sensor must be available. Precondition violations mutate no state.
// Heating has no natural time bound, so progress holds at 50 until the
// target is reached.
func (p *Resistance) Start(now float64, haveThermal, haveSensor bool) error {
	if p.step == ResistanceHeating {
		return ErrActive
	}
	if !haveThermal || !haveSensor {
		return ErrDeviceUnavailable
	}
	if err := p.facade.SetHeaterSetpoint(p.cfg.HighTemperature); err != nil {
		if ferr := p.facade.ForceHeaterSetpoint(p.cfg.HighTemperature); ferr != nil {
			return err
		}
	}
	p.step = ResistanceHeating
	p.stepStart = now
	p.lowered = false
	p.progress = 50
	return nil
}

// Tick checks the latest resistance sample. When it exceeds the
// target, the heater drops to the low setpoint exactly once and the
// machine becomes terminal.
func (p *Resistance) Tick(now float64, resistance float64, ok bool) ([]Event, error) {
	if p.step != ResistanceHeating || !ok {
		return nil, nil
	}
	if resistance < p.cfg.TargetOhms {
		return nil, nil
	}
	var err error
	if !p.lowered {
		err = lowerHeater(p.facade, p.cfg.LowTemperature)
		p.lowered = true
	}
	p.step = ResistanceTargetReached
	p.progress = 100
	return []Event{{Name: "TARGET_REACHED", Time: now}}, err
}

// Cancel aborts heating, forcing the heater low. Cancelling an idle or
// terminal protocol is a no-op.
func (p *Resistance) Cancel() error {
	if p.step != ResistanceHeating {
		return nil
	}
	err := lowerHeater(p.facade, p.cfg.LowTemperature)
	p.step = ResistanceIdle
	p.lowered = false
	p.progress = 0
	return err
}

// Reset returns a terminal machine to Idle so it can be restarted.
func (p *Resistance) Reset() {
	p.step = ResistanceIdle
	p.lowered = false
	p.progress = 0
}

// Report returns the progress view for collaborators.
func (p *Resistance) Report(now float64) Report {
	return Report{
		Active:   p.Active(),
		Step:     uint8(p.step),
		Message:  p.step.String(),
		Progress: p.progress,
	}
}
