package l1packets

import (
	"encoding/binary"
)

/*
Scanner Frame Layout

The range scanner streams one frame per sweep over its serial link. Frames are
not length-prefixed by the transport, so the reader locates them by matching a
fixed header signature in the byte stream.

FRAME STRUCTURE (202 bytes total):
├── Header (6 bytes) - 0x02 0x80 0xCE 0x00 0xB0 0x65
└── Payload (196 bytes) - 98 samples × 2 bytes
    └── Each sample: low byte, then high byte (upper 3 bits are status flags)

There is no trailing checksum. The header is the only integrity marker.

Sample i is measured at a fixed angular offset of i+40 degrees, so a frame
covers a 98° field of view at 1° resolution.
*/

// Scanner frame structure constants
const (
	HEADER_SIZE       = 6  // Frame header signature length in bytes
	SAMPLES_PER_FRAME = 98 // Range samples per sweep
	BYTES_PER_SAMPLE  = 2  // Low byte + high byte

	// Payload bytes following the header.
	PAYLOAD_SIZE = SAMPLES_PER_FRAME * BYTES_PER_SAMPLE
	FRAME_SIZE   = HEADER_SIZE + PAYLOAD_SIZE

	// SAMPLE_MASK keeps the 13-bit range value; the upper 3 bits of the high
	// byte are ignored.
	SAMPLE_MASK = 0x1FFF
)

// HeaderSignature is the fixed byte sequence that precedes every frame payload.
var HeaderSignature = [HEADER_SIZE]byte{0x02, 0x80, 0xCE, 0x00, 0xB0, 0x65}

// RawFrame holds the undecoded payload of one synchronised frame.
type RawFrame [PAYLOAD_SIZE]byte

// Samples is the ordered sequence of 13-bit range readings decoded from a frame.
type Samples [SAMPLES_PER_FRAME]uint16

// CombineSample reassembles a range reading from its low and high bytes.
func CombineSample(low, high byte) uint16 {
	return (uint16(high)<<8 | uint16(low)) & SAMPLE_MASK
}

// Decode converts the payload into range samples, consuming bytes in
// low/high pairs in stream order.
func (f *RawFrame) Decode() Samples {
	var s Samples
	for i := range s {
		off := i * BYTES_PER_SAMPLE
		s[i] = binary.LittleEndian.Uint16(f[off:off+BYTES_PER_SAMPLE]) & SAMPLE_MASK
	}
	return s
}

// EncodeFrame builds the wire form (header followed by payload) of a frame
// carrying the given samples. Values wider than 13 bits are masked. It is
// used by replay fixtures and tests to synthesise sensor traffic.
func EncodeFrame(samples Samples) []byte {
	out := make([]byte, FRAME_SIZE)
	copy(out, HeaderSignature[:])
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[HEADER_SIZE+i*BYTES_PER_SAMPLE:], v&SAMPLE_MASK)
	}
	return out
}
