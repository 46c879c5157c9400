package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/banshee-data/sentry/internal/config"
	"github.com/banshee-data/sentry/internal/lidar/l1packets"
	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/l3grid"
	"github.com/banshee-data/sentry/internal/timeutil"
)

// CommandSink delivers actuator command bytes. *serialmux.SerialMux
// satisfies it.
type CommandSink interface {
	SendCommand(ctx context.Context, cmd []byte) error
}

// Recorder writes pipeline outputs to storage. It is an adapter, so
// implementations live outside the layer packages
// (e.g. internal/lidar/storage/sqlite).
type Recorder interface {
	// RecordCalibration is called once, when the profile freezes.
	RecordCalibration(at time.Time, profile l3grid.ReferenceProfile, report l3grid.CalibrationReport) error
	// RecordDetection is called for every command handed to the sink.
	RecordDetection(at time.Time, seq uint64, det l3grid.Detection) error
}

// Publisher sends human-readable event lines to live subscribers.
type Publisher interface {
	Publish(line string)
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Config holds the parameters and dependencies of a Runner.
type Config struct {
	Sync        l1packets.SyncOptions
	Rounding    l2frames.Rounding
	Calibration *l3grid.CalibrationConfig
	Clock       timeutil.Clock // defaults to timeutil.RealClock

	Sink      CommandSink
	Recorder  Recorder  // Optional: detection log
	Publisher Publisher // Optional: live tail of commands
}

// ConfigFromSentry builds the parameter part of a Config from a loaded
// SentryConfig. Dependencies are left for the caller to fill in.
func ConfigFromSentry(cfg *config.SentryConfig) (Config, error) {
	mode, err := l1packets.ParseSyncMode(cfg.GetSyncMode())
	if err != nil {
		return Config{}, err
	}
	rounding, err := l2frames.ParseRounding(cfg.GetProjectionRounding())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Sync: l1packets.SyncOptions{
			Mode:         mode,
			TrailerBytes: cfg.GetHeaderTrailerBytes(),
		},
		Rounding:    rounding,
		Calibration: l3grid.CalibrationConfigFromSentry(cfg),
	}, nil
}

func (c *Config) validate() error {
	if isNilInterface(c.Sink) {
		return fmt.Errorf("pipeline requires a command sink")
	}
	if c.Sync.TrailerBytes < 0 {
		return fmt.Errorf("header trailer bytes must be non-negative, got %d", c.Sync.TrailerBytes)
	}
	if isNilInterface(c.Clock) {
		c.Clock = timeutil.RealClock{}
	}
	if isNilInterface(c.Recorder) {
		c.Recorder = nil
	}
	if isNilInterface(c.Publisher) {
		c.Publisher = nil
	}
	return nil
}
