package l1packets

import (
	"testing"
)

func TestCombineSample_AllBytePairs(t *testing.T) {
	for low := 0; low < 256; low++ {
		for high := 0; high < 256; high++ {
			got := CombineSample(byte(low), byte(high))
			want := uint16(((high << 8) | low) & 0x1FFF)
			if got != want {
				t.Fatalf("CombineSample(%#02x, %#02x) = %d, want %d", low, high, got, want)
			}
			if got > 8191 {
				t.Fatalf("CombineSample(%#02x, %#02x) = %d exceeds 13 bits", low, high, got)
			}
		}
	}
}

func TestRawFrame_Decode(t *testing.T) {
	var f RawFrame
	for i := 0; i < SAMPLES_PER_FRAME; i++ {
		f[2*i] = byte(i * 7)
		f[2*i+1] = byte(0xE0 | i) // status bits set in the high byte
	}

	samples := f.Decode()
	for i, got := range samples {
		want := CombineSample(f[2*i], f[2*i+1])
		if got != want {
			t.Errorf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestEncodeFrame_RoundTripsThroughDecode(t *testing.T) {
	var in Samples
	for i := range in {
		in[i] = uint16(i*83) & SAMPLE_MASK
	}
	in[5] = 0xFFFF // masked on encode

	wire := EncodeFrame(in)
	if len(wire) != FRAME_SIZE {
		t.Fatalf("len(EncodeFrame) = %d, want %d", len(wire), FRAME_SIZE)
	}
	for i, b := range HeaderSignature {
		if wire[i] != b {
			t.Fatalf("header byte %d = %#02x, want %#02x", i, wire[i], b)
		}
	}

	var f RawFrame
	copy(f[:], wire[HEADER_SIZE:])
	out := f.Decode()
	in[5] &= SAMPLE_MASK
	if out != in {
		t.Errorf("decoded samples differ from encoded input")
	}
}
