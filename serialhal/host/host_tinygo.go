//go:build tinygo

package host

import (
	"errors"
	"machine"
	"time"

	"github.com/oxplot/cn105mediator/serialhal"
)

// uartAdapter adapts a TinyGo machine.UART to serialhal.UART. The
// mediator opens two of these, one per CN105 peer.
type uartAdapter struct {
	u *machine.UART
}

// Open configures the given on-chip UART peripheral at the CN105 line
// parameters and the named TX/RX pins.
func Open(u *machine.UART, tx, rx machine.Pin, cfg serialhal.Config) (serialhal.UART, error) {
	u.Configure(machine.UARTConfig{
		BaudRate: uint32(cfg.BaudRate),
		TX:       tx,
		RX:       rx,
	})
	return &uartAdapter{u: u}, nil
}

func (a *uartAdapter) ReadByte(deadline time.Time) (byte, error) {
	for !a.u.Buffered() {
		if time.Now().After(deadline) {
			return 0, errors.New("serialhal/host: read timed out")
		}
	}
	return a.u.ReadByte()
}

func (a *uartAdapter) Write(b []byte) error {
	_, err := a.u.Write(b)
	return err
}

func (a *uartAdapter) Close() error {
	return nil
}

// StatusLED drives an on-chip GPIO as a status indicator.
type StatusLED struct {
	pin machine.Pin
}

// OpenStatusLED configures the named pin as an output status LED.
func OpenStatusLED(pin machine.Pin) *StatusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &StatusLED{pin: pin}
}

// Set drives the LED on or off.
func (l *StatusLED) Set(on bool) error {
	l.pin.Set(on)
	return nil
}
