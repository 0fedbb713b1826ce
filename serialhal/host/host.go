//go:build !tinygo

// Package host provides UART access for non-embedded builds of the
// mediator (development, testing, and any deployment on a Linux/BSD host
// with a USB-serial CN105 adapter instead of bare hardware UARTs).
package host

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/oxplot/cn105mediator/serialhal"
)

// uart adapts go.bug.st/serial.Port to serialhal.UART.
type uart struct {
	port serial.Port
}

// Open opens the named serial device (e.g. "/dev/ttyUSB0") at the CN105
// line configuration.
func Open(device string, cfg serialhal.Config) (serialhal.UART, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.EvenParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialhal/host: open %s: %w", device, err)
	}
	return &uart{port: p}, nil
}

func (u *uart) ReadByte(deadline time.Time) (byte, error) {
	if err := u.port.SetReadTimeout(time.Until(deadline)); err != nil {
		return 0, err
	}
	var b [1]byte
	n, err := u.port.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("serialhal/host: read timed out")
	}
	return b[0], nil
}

func (u *uart) Write(b []byte) error {
	_, err := u.port.Write(b)
	return err
}

func (u *uart) Close() error {
	return u.port.Close()
}
