package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port. A read that
	// times out returns zero bytes and a nil error.
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// NopPort is a SerialPorter that discards writes and reports end of input on
// every read. It backs the actuator channel when sentry runs with -dry-run.
type NopPort struct{}

func (NopPort) Read([]byte) (int, error)    { return 0, io.EOF }
func (NopPort) Write(p []byte) (int, error) { return len(p), nil }
func (NopPort) Close() error                { return nil }

// WriterPort adapts an io.WriteCloser (for example a capture file) into a
// write-only SerialPorter.
type WriterPort struct {
	io.WriteCloser
}

func (WriterPort) Read([]byte) (int, error) { return 0, io.EOF }

// ReaderPort adapts an io.ReadCloser (for example a recorded sensor stream)
// into a read-only SerialPorter. Writes are accepted and discarded so that
// code written against a live port can run against a recording.
type ReaderPort struct {
	io.ReadCloser
}

func (ReaderPort) Write(p []byte) (int, error) { return len(p), nil }

// applyReadTimeout sets d on p when p supports read timeouts. Zero leaves the
// port blocking.
func applyReadTimeout(p SerialPorter, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tp, ok := p.(TimeoutSerialPorter)
	if !ok {
		return nil
	}
	return tp.SetReadTimeout(d)
}
