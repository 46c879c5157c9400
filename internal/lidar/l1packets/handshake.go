package l1packets

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/sentry/internal/monitoring"
)

// Sensor startup protocol. On power-up the scanner emits a fixed banner that
// starts with STX (0x02). The host then narrows the scan to a 100° field at
// 1° resolution and requests continuous output; each command is answered by
// a fixed-size acknowledgement that is read and discarded.
const (
	STX                   = 0x02
	STARTUP_MESSAGE_SIZE  = 28 // banner bytes following STX
	CHANGE_ANGLE_ACK_SIZE = 14
	START_OUTPUT_ACK_SIZE = 10
	maxHandshakeIdleReads = 30 // consecutive empty reads tolerated while waiting for a reply
)

var (
	// ChangeAngleCommand selects a 100° scan angle with 1° resolution.
	ChangeAngleCommand = []byte{0x02, 0x00, 0x05, 0x00, 0x3B, 0x64, 0x00, 0x64, 0x00, 0x1D, 0x0F}
	// StartOutputCommand requests continuous measurement output.
	StartOutputCommand = []byte{0x02, 0x00, 0x02, 0x00, 0x20, 0x24, 0x34, 0x08}
)

// Handshake configures the sensor before capture begins. It waits for the
// power-on banner (skipping any stray bytes before STX, and tolerating read
// timeouts until ctx is done), then sends the angle and start commands and
// consumes their acknowledgements. Frame capture must not begin until it
// returns nil.
func Handshake(ctx context.Context, rw io.ReadWriter) error {
	one := make([]byte, 1)
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rw.Read(one)
		if n == 1 {
			if one[0] == STX {
				break
			}
			skipped++
			continue
		}
		if err == nil || errors.Is(classifyReadError(err), ErrReadTimeout) {
			continue
		}
		return fmt.Errorf("%w: waiting for startup banner: %w", ErrHandshake, err)
	}
	if skipped > 0 {
		monitoring.Logf("sensor handshake: skipped %d bytes before startup banner", skipped)
	}

	if err := readReply(ctx, rw, STARTUP_MESSAGE_SIZE); err != nil {
		return fmt.Errorf("%w: reading startup banner: %w", ErrHandshake, err)
	}

	if err := writeCommand(rw, ChangeAngleCommand); err != nil {
		return fmt.Errorf("%w: sending angle configuration: %w", ErrHandshake, err)
	}
	if err := readReply(ctx, rw, CHANGE_ANGLE_ACK_SIZE); err != nil {
		return fmt.Errorf("%w: reading angle acknowledgement: %w", ErrHandshake, err)
	}

	if err := writeCommand(rw, StartOutputCommand); err != nil {
		return fmt.Errorf("%w: sending start command: %w", ErrHandshake, err)
	}
	if err := readReply(ctx, rw, START_OUTPUT_ACK_SIZE); err != nil {
		return fmt.Errorf("%w: reading start acknowledgement: %w", ErrHandshake, err)
	}

	monitoring.Logf("sensor handshake complete")
	return nil
}

func writeCommand(w io.Writer, cmd []byte) error {
	n, err := w.Write(cmd)
	if err != nil {
		return err
	}
	if n != len(cmd) {
		return fmt.Errorf("wrote %d of %d bytes", n, len(cmd))
	}
	return nil
}

// readReply reads and discards exactly size bytes.
func readReply(ctx context.Context, r io.Reader, size int) error {
	buf := make([]byte, size)
	got, idle := 0, 0
	for got < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[got:])
		got += n
		if n > 0 {
			idle = 0
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("got %d of %d bytes: %w", got, size, ErrShortRead)
			}
			if !errors.Is(classifyReadError(err), ErrReadTimeout) {
				return err
			}
		}
		idle++
		if idle >= maxHandshakeIdleReads {
			return fmt.Errorf("got %d of %d bytes: %w", got, size, ErrReadTimeout)
		}
	}
	return nil
}
