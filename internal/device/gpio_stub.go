//go:build !linux

package device

import "errors"

// GPIOValve is not available on non-Linux platforms.
type GPIOValve struct{}

// NewGPIOValve returns an error on non-Linux platforms.
func NewGPIOValve(GPIOPins) (*GPIOValve, error) {
	return nil, errors.New("gpio valve: not supported on this platform (requires Linux)")
}

// Open is not implemented on non-Linux platforms.
func (*GPIOValve) Open() error { return errors.New("gpio valve: not supported") }

// Close is not implemented on non-Linux platforms.
func (*GPIOValve) Close() error { return errors.New("gpio valve: not supported") }

// Read is not implemented on non-Linux platforms.
func (*GPIOValve) Read() (PinStates, error) {
	return PinStates{}, errors.New("gpio valve: not supported")
}

// Shutdown is not implemented on non-Linux platforms.
func (*GPIOValve) Shutdown() error { return nil }
