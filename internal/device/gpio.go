package device

// Default BCM pin assignments for the valve rig.
const (
	DefaultPinValve     = 12 // valve drive output
	DefaultPinRetracted = 5
	DefaultPinExtended  = 6
	DefaultPinOpen      = 13
	DefaultPinClosed    = 19
)

// GPIOPins holds the BCM line offsets for the valve rig.
type GPIOPins struct {
	Valve     int
	Retracted int
	Extended  int
	Open      int
	Closed    int
}

// DefaultGPIOPins returns the standard pin assignment.
func DefaultGPIOPins() GPIOPins {
	return GPIOPins{
		Valve:     DefaultPinValve,
		Retracted: DefaultPinRetracted,
		Extended:  DefaultPinExtended,
		Open:      DefaultPinOpen,
		Closed:    DefaultPinClosed,
	}
}
