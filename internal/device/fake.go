package device

import "errors"

// FakeResistanceSensor returns scripted resistance values. Each call
// to Read consumes the next sample; when exhausted, the last sample
// repeats.
type FakeResistanceSensor struct {
	Samples []float64
	index   int

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// NewFakeResistanceSensor creates a sensor with the given samples.
func NewFakeResistanceSensor(samples []float64) *FakeResistanceSensor {
	return &FakeResistanceSensor{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeResistanceSensor) Read() (float64, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// Reset rewinds to the first sample.
func (f *FakeResistanceSensor) Reset() {
	f.index = 0
}

// FakeGasSensor returns scripted gas readings. When exhausted, the
// last reading repeats.
type FakeGasSensor struct {
	Samples []GasReading
	index   int

	// NoData, if set, makes Read report no sample this tick.
	NoData bool
}

// NewFakeGasSensor creates a sensor with the given readings.
func NewFakeGasSensor(samples []GasReading) *FakeGasSensor {
	return &FakeGasSensor{Samples: samples}
}

// Read returns the next scripted reading.
func (f *FakeGasSensor) Read() (GasReading, bool) {
	if f.NoData || len(f.Samples) == 0 {
		return GasReading{}, false
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, true
}

// Reset rewinds to the first reading.
func (f *FakeGasSensor) Reset() {
	f.index = 0
	f.NoData = false
}

// FakeThermalActuator records setpoint commands for test assertions.
type FakeThermalActuator struct {
	// Setpoints contains every setpoint accepted via SetSetpoint.
	Setpoints []float64

	// Forced contains every setpoint accepted via ForceSetpoint.
	Forced []float64

	// SetError, if set, will be returned by SetSetpoint.
	SetError error

	// ForceError, if set, will be returned by ForceSetpoint.
	ForceError error
}

// NewFakeThermalActuator creates an actuator that records commands.
func NewFakeThermalActuator() *FakeThermalActuator {
	return &FakeThermalActuator{}
}

// SetSetpoint records the command.
func (f *FakeThermalActuator) SetSetpoint(celsius float64) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Setpoints = append(f.Setpoints, celsius)
	return nil
}

// ForceSetpoint records the command on the fallback path.
func (f *FakeThermalActuator) ForceSetpoint(celsius float64) error {
	if f.ForceError != nil {
		return f.ForceError
	}
	f.Forced = append(f.Forced, celsius)
	return nil
}

// Last returns the most recent setpoint accepted on either path.
func (f *FakeThermalActuator) Last() (float64, bool) {
	if n := len(f.Forced); n > 0 {
		return f.Forced[n-1], true
	}
	if n := len(f.Setpoints); n > 0 {
		return f.Setpoints[n-1], true
	}
	return 0, false
}

// FakeMechanicalActuator records valve commands.
type FakeMechanicalActuator struct {
	// Commands contains "open"/"close" in call order.
	Commands []string

	// OpenError and CloseError, if set, are returned by the
	// corresponding call.
	OpenError  error
	CloseError error
}

// NewFakeMechanicalActuator creates an actuator that records commands.
func NewFakeMechanicalActuator() *FakeMechanicalActuator {
	return &FakeMechanicalActuator{}
}

// Open records the command.
func (f *FakeMechanicalActuator) Open() error {
	if f.OpenError != nil {
		return f.OpenError
	}
	f.Commands = append(f.Commands, "open")
	return nil
}

// Close records the command.
func (f *FakeMechanicalActuator) Close() error {
	if f.CloseError != nil {
		return f.CloseError
	}
	f.Commands = append(f.Commands, "close")
	return nil
}

// FakeReferenceSetter records reference resistance commands.
type FakeReferenceSetter struct {
	References []float64

	// SetError, if set, will be returned by SetReference.
	SetError error
}

// SetReference records the command.
func (f *FakeReferenceSetter) SetReference(ohms float64) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.References = append(f.References, ohms)
	return nil
}

// FakePinSensor returns a fixed set of switch states.
type FakePinSensor struct {
	States PinStates

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// Read returns the configured states.
func (f *FakePinSensor) Read() (PinStates, error) {
	if f.ReadError != nil {
		return PinStates{}, f.ReadError
	}
	return f.States, nil
}
