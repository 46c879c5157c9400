package main

import (
	"fmt"

	"github.com/banshee-data/sentry/internal/db"
	"github.com/banshee-data/sentry/internal/lidar/monitor"
	"github.com/banshee-data/sentry/internal/lidar/storage/sqlite"
)

// Summary describes a rendered session.
type Summary struct {
	SessionID  string
	Detections int
	Fires      int
}

func (s Summary) String() string {
	return fmt.Sprintf("session=%s detections=%d fires=%d", s.SessionID, s.Detections, s.Fires)
}

// resolveSession maps "latest" (or an empty ref) to the most recent session.
func resolveSession(database *db.DB, ref string) (*db.Session, error) {
	if ref == "" || ref == "latest" {
		return database.LatestSession()
	}
	return database.GetSession(ref)
}

// RenderSession plots the frozen profile of a recorded session together with
// every detection logged against it.
func RenderSession(database *db.DB, ref, out string) (Summary, error) {
	session, err := resolveSession(database, ref)
	if err != nil {
		return Summary{}, fmt.Errorf("session %q: %w", ref, err)
	}

	profile, _, err := sqlite.LoadProfile(database, session.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("calibration for session %s: %w", session.ID, err)
	}

	detections, err := database.Detections(session.ID, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("detections for session %s: %w", session.ID, err)
	}

	summary := Summary{SessionID: session.ID, Detections: len(detections)}
	pp := &monitor.ProfilePlot{
		Title:   fmt.Sprintf("Session %s (%s)", session.ID, session.StartedAt.Format("2006-01-02 15:04:05")),
		Profile: profile.Distances(),
	}
	for _, d := range detections {
		if d.Fire {
			summary.Fires++
		}
		pp.Detections = append(pp.Detections, monitor.DetectionPoint{
			Index:    d.TargetIndex,
			Distance: d.Distance,
			Fire:     d.Fire,
		})
	}

	if err := pp.Save(out); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
