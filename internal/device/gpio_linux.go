//go:build linux

package device

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOValve drives the gas valve through a single GPIO output line and
// reads the four position switches from input lines, using the Linux
// GPIO character device.
type GPIOValve struct {
	chip  *gpiocdev.Chip
	drive *gpiocdev.Line
	pins  [4]*gpiocdev.Line
}

// NewGPIOValve opens gpiochip0 and requests the drive line as output
// and the switch lines as inputs with pull-down, matching Pi boot
// defaults.
func NewGPIOValve(pins GPIOPins) (*GPIOValve, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	v := &GPIOValve{chip: chip}

	v.drive, err = chip.RequestLine(pins.Valve, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", pins.Valve, err)
	}

	inputs := [4]int{pins.Retracted, pins.Extended, pins.Open, pins.Closed}
	for i, offset := range inputs {
		line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			v.Shutdown()
			return nil, fmt.Errorf("request switch pin %d: %w", offset, err)
		}
		v.pins[i] = line
	}

	return v, nil
}

// Open energizes the valve drive line.
func (v *GPIOValve) Open() error {
	if err := v.drive.SetValue(1); err != nil {
		return fmt.Errorf("drive valve open: %w", err)
	}
	return nil
}

// Close de-energizes the valve drive line.
func (v *GPIOValve) Close() error {
	if err := v.drive.SetValue(0); err != nil {
		return fmt.Errorf("drive valve closed: %w", err)
	}
	return nil
}

// Read returns the four switch states.
func (v *GPIOValve) Read() (PinStates, error) {
	var raw [4]int
	for i, line := range v.pins {
		val, err := line.Value()
		if err != nil {
			return PinStates{}, fmt.Errorf("read switch %d: %w", i, err)
		}
		raw[i] = val
	}
	return PinStates{
		Retracted: raw[0] == 1,
		Extended:  raw[1] == 1,
		Open:      raw[2] == 1,
		Closed:    raw[3] == 1,
	}, nil
}

// Shutdown de-energizes the drive line and releases all GPIO
// resources. Switch lines are reconfigured to input with pull-down so
// the rig reboots into a clean state.
func (v *GPIOValve) Shutdown() error {
	var errs []error

	if v.drive != nil {
		if err := v.drive.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("de-energize valve: %w", err))
		}
		if err := v.drive.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure valve pin: %w", err))
		}
		if err := v.drive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close valve pin: %w", err))
		}
	}
	for i, line := range v.pins {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch %d: %w", i, err))
		}
	}
	if v.chip != nil {
		if err := v.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
