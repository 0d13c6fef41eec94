package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal surface SerialMux needs from a serial port, so
// tests and dev mode can run without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support read timeouts.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortOpener opens a port at path. NewRealSerialMux uses the
// go.bug.st/serial opener; tests substitute their own.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
