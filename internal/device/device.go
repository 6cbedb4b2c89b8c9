// Package device defines the capability interfaces the engine consumes
// (resistance sensor, gas sensor, thermal actuator, mechanical valve
// actuator, pin position sensor) together with no-op and fake
// implementations. The real valve/pin implementation uses the Linux
// GPIO character device; everything else stops at the interface
// boundary, with the concrete instrument transport supplied by the
// deployment.
package device

// GasReading is one sample from the gas sensor.
type GasReading struct {
	ConcentrationPPM float64
	TemperatureC     float64
	HumidityPct      float64
}

// PinStates holds the four independent position switch states. They
// are consumed for display and logging only; the engine never branches
// control logic on them.
type PinStates struct {
	Retracted bool
	Extended  bool
	Open      bool
	Closed    bool
}

// ResistanceSensor reads the sensing element resistance in ohms.
// An error means "unavailable"; the engine skips the tick.
type ResistanceSensor interface {
	Read() (float64, error)
}

// GasSensor reads gas concentration, ambient temperature, and
// humidity. Absence of data (ok == false) is normal, not an error.
type GasSensor interface {
	Read() (GasReading, bool)
}

// ThermalActuator drives the heater setpoint. SetSetpoint must be
// idempotent and safe to call every tick.
type ThermalActuator interface {
	SetSetpoint(celsius float64) error
}

// RawSetter is the fallback direct-write path used when SetSetpoint
// fails during a safety-critical write (cancellation, cooldown).
type RawSetter interface {
	ForceSetpoint(celsius float64) error
}

// ReferenceSetter accepts the reference resistance command for the
// conductance instrument.
type ReferenceSetter interface {
	SetReference(ohms float64) error
}

// MechanicalActuator opens and closes the gas valve.
type MechanicalActuator interface {
	Open() error
	Close() error
}

// PinSensor reads the position switches.
type PinSensor interface {
	Read() (PinStates, error)
}
