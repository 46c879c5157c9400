package pipeline

import (
	"time"

	"github.com/banshee-data/sentry/internal/lidar/l1packets"
	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/l3grid"
)

// Status is a point-in-time snapshot of a Runner.
type Status struct {
	Phase        l3grid.Phase        `json:"phase"`
	Frames       uint64              `json:"frames"`
	WarmupFrames int                 `json:"warmup_frames"`
	Commands     uint64              `json:"commands"`
	Fires        uint64              `json:"fires"`
	DroppedWrite uint64              `json:"dropped_writes"`
	Sync         l1packets.SyncStats `json:"sync"`
	StartedAt    time.Time           `json:"started_at"`
	LastFrameAt  time.Time           `json:"last_frame_at"`

	LastDistances l2frames.Distances `json:"last_distances"`
	LastDetection *l3grid.Detection  `json:"last_detection,omitempty"`

	// Profile and Report are set once the session is armed.
	Profile *l2frames.Distances       `json:"profile,omitempty"`
	Report  *l3grid.CalibrationReport `json:"report,omitempty"`
}

// FrameRate returns the mean frame rate since the runner started.
func (s Status) FrameRate() float64 {
	elapsed := s.LastFrameAt.Sub(s.StartedAt).Seconds()
	if s.Frames == 0 || elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / elapsed
}
