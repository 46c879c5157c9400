package l1packets

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrStreamClosed reports that the input ended while searching for a header.
	ErrStreamClosed = errors.New("sensor stream closed")
	// ErrIOFailure wraps any failed read from the sensor stream.
	ErrIOFailure = errors.New("sensor stream read failed")
	// ErrShortRead reports that the stream ended part way through a frame.
	ErrShortRead = fmt.Errorf("short read: %w", ErrIOFailure)
	// ErrReadTimeout reports that a read returned no data within the port's
	// read timeout. It is recoverable: the byte search restarts.
	ErrReadTimeout = errors.New("sensor read timed out")
	// ErrHandshake reports a failure while configuring the sensor at startup.
	ErrHandshake = errors.New("sensor handshake failed")
)

type timeoutError interface {
	Timeout() bool
}

// classifyReadError maps an error returned by the underlying reader onto the
// package's error kinds. EOF is returned unchanged for the caller to map.
func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, ErrReadTimeout) {
		return err
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrReadTimeout
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return ErrReadTimeout
	}
	return fmt.Errorf("%w: %w", ErrIOFailure, err)
}
