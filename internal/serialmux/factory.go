package serialmux

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/sentry/internal/monitoring"
)

// RealPortFactory opens hardware serial ports through go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the port at path and applies the read timeout, if any.
func (RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := applyReadTimeout(port, norm.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	monitoring.Logf("opened serial port %s (%d baud %d%s%d, read timeout %s)",
		path, norm.BaudRate, norm.DataBits, norm.Parity, norm.StopBits, norm.ReadTimeout)
	return port, nil
}

// OpenSerialMux opens path through f and wraps the port in a SerialMux.
func OpenSerialMux(f SerialPortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := f.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}

// ListPorts returns the serial ports visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
