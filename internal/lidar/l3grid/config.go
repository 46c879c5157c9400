package l3grid

import (
	"fmt"

	"github.com/banshee-data/sentry/internal/config"
)

// INFINITE_DISTANCE seeds the rolling minimum and stands in for
// non-qualifying samples during selection. It exceeds any projected
// distance a 13-bit sample can produce.
const INFINITE_DISTANCE = 100000

// CalibrationConfig configures background calibration and target selection.
type CalibrationConfig struct {
	WarmupFrames int // frames folded into the rolling minimum (default: 30)
	SafetyMargin int // distance units removed from each baseline (default: 10)
	MaxThreshold int // baseline ceiling and detection range limit (default: 1000)
}

// DefaultCalibrationConfig returns the built-in calibration defaults.
func DefaultCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{
		WarmupFrames: config.DefaultWarmupFrames,
		SafetyMargin: config.DefaultSafetyMargin,
		MaxThreshold: config.DefaultMaxThreshold,
	}
}

// CalibrationConfigFromSentry builds a CalibrationConfig from a loaded
// SentryConfig.
func CalibrationConfigFromSentry(cfg *config.SentryConfig) *CalibrationConfig {
	return &CalibrationConfig{
		WarmupFrames: cfg.GetWarmupFrames(),
		SafetyMargin: cfg.GetSafetyMargin(),
		MaxThreshold: cfg.GetMaxThreshold(),
	}
}

// Validate checks if the configuration is valid.
func (c *CalibrationConfig) Validate() error {
	if c.WarmupFrames < 1 {
		return fmt.Errorf("WarmupFrames must be at least 1, got %d", c.WarmupFrames)
	}
	if c.SafetyMargin < 0 {
		return fmt.Errorf("SafetyMargin must be non-negative, got %d", c.SafetyMargin)
	}
	if c.MaxThreshold <= 0 || c.MaxThreshold >= INFINITE_DISTANCE {
		return fmt.Errorf("MaxThreshold must be in (0, %d), got %d", INFINITE_DISTANCE, c.MaxThreshold)
	}
	return nil
}

// WithWarmupFrames sets the number of calibration frames.
func (c *CalibrationConfig) WithWarmupFrames(n int) *CalibrationConfig {
	c.WarmupFrames = n
	return c
}

// WithSafetyMargin sets the safety margin.
func (c *CalibrationConfig) WithSafetyMargin(m int) *CalibrationConfig {
	c.SafetyMargin = m
	return c
}

// WithMaxThreshold sets the maximum threshold distance.
func (c *CalibrationConfig) WithMaxThreshold(d int) *CalibrationConfig {
	c.MaxThreshold = d
	return c
}
