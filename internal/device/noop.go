package device

import "errors"

// ErrNotPresent is returned by no-op sensors: the device is simply not
// attached to this rig. The engine treats it as "no sample this tick".
var ErrNotPresent = errors.New("device: not present")

// NoopResistanceSensor stands in when no resistance instrument is
// attached. Selected at construction time; the engine never needs to
// know a device is absent.
type NoopResistanceSensor struct{}

// Read always reports the sensor as unavailable.
func (NoopResistanceSensor) Read() (float64, error) { return 0, ErrNotPresent }

// NoopGasSensor stands in when no gas sensor is attached.
type NoopGasSensor struct{}

// Read never has data.
func (NoopGasSensor) Read() (GasReading, bool) { return GasReading{}, false }

// NoopThermalActuator accepts and discards setpoint commands.
type NoopThermalActuator struct{}

// SetSetpoint discards the command.
func (NoopThermalActuator) SetSetpoint(float64) error { return nil }

// ForceSetpoint discards the command.
func (NoopThermalActuator) ForceSetpoint(float64) error { return nil }

// NoopReferenceSetter accepts and discards reference resistance
// commands.
type NoopReferenceSetter struct{}

// SetReference discards the command.
func (NoopReferenceSetter) SetReference(float64) error { return nil }

// NoopMechanicalActuator accepts and discards valve commands.
type NoopMechanicalActuator struct{}

// Open discards the command.
func (NoopMechanicalActuator) Open() error { return nil }

// Close discards the command.
func (NoopMechanicalActuator) Close() error { return nil }

// NoopPinSensor reports all switches inactive.
type NoopPinSensor struct{}

// Read reports every switch off.
func (NoopPinSensor) Read() (PinStates, error) { return PinStates{}, nil }
