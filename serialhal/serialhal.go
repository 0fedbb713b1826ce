// Package serialhal defines the minimum hardware interface this mediator
// needs to talk to a UART, small enough that a single implementation can
// be swapped between a host serial port and a TinyGo on-device UART.
package serialhal

import "time"

// Config describes the fixed line parameters the CN105 bus uses: 2400
// baud, 8 data bits, even parity, 1 stop bit, no flow control.
type Config struct {
	BaudRate int
}

// DefaultConfig is the standard CN105 line configuration.
var DefaultConfig = Config{BaudRate: 2400}

// UART is the minimal interface a port driver needs: byte-stream read and
// write with a deadline, plus a close. Both drivers in this mediator
// (host and TinyGo) implement it so HalfDuplexChannel stays
// platform-agnostic.
type UART interface {
	// ReadByte blocks for at most the given deadline waiting for a single
	// byte. It returns an error (including a deadline-exceeded error) if
	// none arrives in time.
	ReadByte(deadline time.Time) (byte, error)

	// Write sends b in full, blocking until accepted by the hardware or an
	// error occurs. Must be safe to call concurrently with ReadByte.
	Write(b []byte) error

	// Close releases the underlying hardware resource.
	Close() error
}
