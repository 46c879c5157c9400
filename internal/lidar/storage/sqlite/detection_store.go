package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/sentry/internal/db"
	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/l3grid"
)

// DetectionStore records one session's calibration and detections. It
// satisfies pipeline.Recorder.
type DetectionStore struct {
	db      *db.DB
	session *db.Session
}

// NewDetectionStore opens a new session row in database.
func NewDetectionStore(database *db.DB, startedAt time.Time, version, configJSON string) (*DetectionStore, error) {
	s, err := database.CreateSession(startedAt, version, configJSON)
	if err != nil {
		return nil, err
	}
	return &DetectionStore{db: database, session: s}, nil
}

// SessionID returns the ID of the session being recorded.
func (s *DetectionStore) SessionID() string { return s.session.ID }

// RecordCalibration stores the frozen profile and its report.
func (s *DetectionStore) RecordCalibration(at time.Time, profile l3grid.ReferenceProfile, report l3grid.CalibrationReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode calibration report: %w", err)
	}
	d := profile.Distances()
	return s.db.RecordCalibration(db.Calibration{
		SessionID:    s.session.ID,
		FrozenAt:     at,
		WarmupFrames: report.Frames,
		Profile:      d[:],
		Report:       reportJSON,
	})
}

// RecordDetection stores one command sent to the actuator.
func (s *DetectionStore) RecordDetection(at time.Time, seq uint64, det l3grid.Detection) error {
	return s.db.RecordDetection(db.Detection{
		SessionID:   s.session.ID,
		FrameSeq:    seq,
		TakenAt:     at,
		Command:     byte(det.Command),
		TargetIndex: det.Command.Index(),
		Fire:        det.Command.Fire(),
		Distance:    det.Distance,
		Reference:   det.Reference,
	})
}

// LoadProfile reads back the profile of a recorded session for offline
// inspection. It is never used to seed a live session.
func LoadProfile(database *db.DB, sessionID string) (l3grid.ReferenceProfile, *db.Calibration, error) {
	c, err := database.GetCalibration(sessionID)
	if err != nil {
		return l3grid.ReferenceProfile{}, nil, err
	}
	p, err := ProfileFromCalibration(c)
	if err != nil {
		return l3grid.ReferenceProfile{}, nil, err
	}
	return p, c, nil
}

// ProfileFromCalibration converts a stored calibration row into a profile.
func ProfileFromCalibration(c *db.Calibration) (l3grid.ReferenceProfile, error) {
	var d l2frames.Distances
	if len(c.Profile) != len(d) {
		return l3grid.ReferenceProfile{}, fmt.Errorf("stored profile has %d entries, want %d", len(c.Profile), len(d))
	}
	copy(d[:], c.Profile)
	return l3grid.NewReferenceProfile(d), nil
}
