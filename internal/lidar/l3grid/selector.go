package l3grid

import (
	"fmt"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
)

// Command is the byte sent to the actuator controller: the target index in
// bits 0-6 and the fire flag in bit 7.
type Command byte

const (
	FIRE_BIT   = 0x80
	INDEX_MASK = 0x7F
)

// NewCommand encodes a target index and fire flag.
func NewCommand(index int, fire bool) Command {
	c := Command(index & INDEX_MASK)
	if fire {
		c |= FIRE_BIT
	}
	return c
}

func (c Command) Index() int { return int(c & INDEX_MASK) }
func (c Command) Fire() bool { return c&FIRE_BIT != 0 }

func (c Command) String() string {
	return fmt.Sprintf("0x%02x(index=%d fire=%t)", byte(c), c.Index(), c.Fire())
}

// Detection is the outcome of selecting on one live frame.
type Detection struct {
	Command   Command
	Distance  int // projected distance at the selected index
	Reference int // baseline at the selected index
}

// Selector picks the nearest foreground return in a live frame. It is a pure
// function of the frame and the frozen profile.
type Selector struct {
	profile      ReferenceProfile
	maxThreshold int
}

// NewSelector creates a Selector over a frozen profile.
func NewSelector(profile ReferenceProfile, maxThreshold int) *Selector {
	return &Selector{profile: profile, maxThreshold: maxThreshold}
}

// Profile returns the frozen profile the selector compares against.
func (s *Selector) Profile() ReferenceProfile { return s.profile }

// Qualifies reports whether distance v at index i is a foreground candidate:
// nearer than the baseline, inside the threshold, and positive.
func (s *Selector) Qualifies(i, v int) bool {
	return v < s.profile.At(i) && v < s.maxThreshold && v > 0
}

// Select returns the command for frame d. The selected index is the first
// index holding the smallest qualifying distance; with no qualifying index it
// is 0 and the fire flag is clear.
func (s *Selector) Select(d l2frames.Distances) Detection {
	minIndex, minValue := 0, INFINITE_DISTANCE
	for i, v := range d {
		if !s.Qualifies(i, v) {
			v = INFINITE_DISTANCE
		}
		if v < minValue {
			minIndex, minValue = i, v
		}
	}
	fire := s.Qualifies(minIndex, d[minIndex])
	return Detection{
		Command:   NewCommand(minIndex, fire),
		Distance:  d[minIndex],
		Reference: s.profile.At(minIndex),
	}
}
