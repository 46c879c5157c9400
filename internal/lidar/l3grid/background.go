package l3grid

import (
	"errors"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
)

// ErrCalibrationFinalized is returned when frames are added to a calibrator
// whose profile has already been frozen.
var ErrCalibrationFinalized = errors.New("calibration already finalized")

// ReferenceProfile is a frozen background baseline: the distance, per sample
// index, below which a return counts as foreground. It is a value type; once
// produced by a Calibrator it is never modified.
type ReferenceProfile struct {
	distances l2frames.Distances
}

// NewReferenceProfile freezes d as a profile. Used when a baseline is
// supplied rather than learned, typically in tests and replay tools.
func NewReferenceProfile(d l2frames.Distances) ReferenceProfile {
	return ReferenceProfile{distances: d}
}

// At returns the baseline distance at index i.
func (p ReferenceProfile) At(i int) int {
	return p.distances[i]
}

// Distances returns a copy of the baseline.
func (p ReferenceProfile) Distances() l2frames.Distances {
	return p.distances
}

// Calibrator learns a ReferenceProfile from the rolling per-index minimum of
// the first WarmupFrames frames. It has a single owner and is not safe for
// concurrent use.
type Calibrator struct {
	cfg       CalibrationConfig
	minimum   l2frames.Distances
	maximum   l2frames.Distances
	frames    int
	finalized bool
}

// NewCalibrator creates a calibrator with every baseline at INFINITE_DISTANCE.
func NewCalibrator(cfg CalibrationConfig) *Calibrator {
	c := &Calibrator{cfg: cfg}
	for i := range c.minimum {
		c.minimum[i] = INFINITE_DISTANCE
		c.maximum[i] = -1
	}
	return c
}

// Add folds one frame into the rolling minimum and reports whether the
// warm-up window is now complete.
func (c *Calibrator) Add(d l2frames.Distances) (bool, error) {
	if c.finalized {
		return true, ErrCalibrationFinalized
	}
	for i, v := range d {
		if v < c.minimum[i] {
			c.minimum[i] = v
		}
		if v > c.maximum[i] {
			c.maximum[i] = v
		}
	}
	c.frames++
	return c.Complete(), nil
}

// Frames returns the number of frames added so far.
func (c *Calibrator) Frames() int { return c.frames }

// Complete reports whether the warm-up window has been filled.
func (c *Calibrator) Complete() bool { return c.frames >= c.cfg.WarmupFrames }

// Finalize clamps each rolling minimum to MaxThreshold, removes the safety
// margin from baselines that exceed it, and freezes the result. The
// calibrator accepts no further frames afterwards.
func (c *Calibrator) Finalize() (ReferenceProfile, CalibrationReport) {
	c.finalized = true

	var ref l2frames.Distances
	report := CalibrationReport{Frames: c.frames}
	for i, v := range c.minimum {
		if v > c.cfg.MaxThreshold {
			v = c.cfg.MaxThreshold
			report.Clamped++
		}
		if v > c.cfg.SafetyMargin {
			v -= c.cfg.SafetyMargin
		} else {
			report.BelowMargin++
		}
		if v < 0 {
			v = 0
		}
		ref[i] = v
	}
	report.computeSpread(c.minimum, c.maximum, c.frames)
	return ReferenceProfile{distances: ref}, report
}
