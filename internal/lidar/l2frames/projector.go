package l2frames

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/sentry/internal/lidar/l1packets"
)

// ANGLE_OFFSET is the scan angle, in degrees, of sample index 0. Index i is
// measured at ANGLE_OFFSET+i degrees.
const ANGLE_OFFSET = 40

// Distances holds one projected distance per sample index.
type Distances [l1packets.SAMPLES_PER_FRAME]int

// Rounding selects how a projected distance is converted to an integer.
type Rounding int

const (
	// RoundNearest rounds half away from zero.
	RoundNearest Rounding = iota
	// Truncate drops the fractional part.
	Truncate
)

func (r Rounding) String() string {
	switch r {
	case RoundNearest:
		return "round"
	case Truncate:
		return "truncate"
	default:
		return fmt.Sprintf("Rounding(%d)", int(r))
	}
}

// ParseRounding converts a config string into a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "round", "nearest":
		return RoundNearest, nil
	case "truncate", "trunc":
		return Truncate, nil
	default:
		return RoundNearest, fmt.Errorf("unsupported projection rounding %q: expected round or truncate", s)
	}
}

// Angle returns the scan angle of sample index i in degrees.
func Angle(i int) int {
	return i + ANGLE_OFFSET
}

// sines caches sin(Angle(i)) for every index; the mapping never changes.
var sines = func() (s [l1packets.SAMPLES_PER_FRAME]float64) {
	for i := range s {
		s[i] = math.Sin(float64(Angle(i)) * math.Pi / 180.0)
	}
	return s
}()

// Project returns the component of a raw range reading at index i that lies
// along the sensor's forward axis: raw·sin(Angle(i)).
func Project(raw uint16, i int, rounding Rounding) int {
	var sin float64
	if i >= 0 && i < len(sines) {
		sin = sines[i]
	} else {
		sin = math.Sin(float64(Angle(i)) * math.Pi / 180.0)
	}
	d := float64(raw) * sin
	if rounding == Truncate {
		return int(d)
	}
	return int(math.Round(d))
}

// ProjectFrame projects every sample of a decoded frame.
func ProjectFrame(samples l1packets.Samples, rounding Rounding) Distances {
	var out Distances
	for i, raw := range samples {
		out[i] = Project(raw, i, rounding)
	}
	return out
}

