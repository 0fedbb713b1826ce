//go:build !tinygo

package host

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	hostlib "periph.io/x/host/v3"
)

// StatusLED wraps a GPIO output used to reflect mediator state (connected /
// passthru / error) on a host that exposes real GPIO lines.
type StatusLED struct {
	pin gpio.PinIO
}

// OpenStatusLED initialises the periph.io host driver registry and opens
// the named GPIO line as an output.
func OpenStatusLED(name string) (*StatusLED, error) {
	if _, err := hostlib.Init(); err != nil {
		return nil, fmt.Errorf("serialhal/host: periph init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("serialhal/host: no such GPIO pin %q", name)
	}
	return &StatusLED{pin: pin}, nil
}

// Set drives the LED on or off.
func (l *StatusLED) Set(on bool) error {
	return l.pin.Out(gpio.Level(on))
}
