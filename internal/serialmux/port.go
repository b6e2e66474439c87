package serialmux

import "io"

// SerialPorter is what the mux needs from a port. *serial.Port satisfies it,
// as does TestableSerialPort.
type SerialPorter interface {
	io.ReadWriteCloser
}

// PortOpener opens a port. OpenPort is the real implementation.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
