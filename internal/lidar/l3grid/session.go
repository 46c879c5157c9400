package l3grid

import (
	"fmt"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/monitoring"
)

// Phase is the session's position in its one-way lifecycle.
type Phase int

const (
	WarmingUp Phase = iota
	Armed
)

func (p Phase) String() string {
	switch p {
	case WarmingUp:
		return "warming_up"
	case Armed:
		return "armed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Session owns the background state of one run. While WarmingUp the profile
// belongs to the calibrator; the transition to Armed happens once, freezes
// the profile, and hands it to the selector. There is no way back.
type Session struct {
	cfg        CalibrationConfig
	phase      Phase
	calibrator *Calibrator
	selector   *Selector
	report     CalibrationReport
}

// NewSession validates cfg and starts a session in the WarmingUp phase.
func NewSession(cfg *CalibrationConfig) (*Session, error) {
	if cfg == nil {
		cfg = DefaultCalibrationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration config: %w", err)
	}
	return &Session{
		cfg:        *cfg,
		phase:      WarmingUp,
		calibrator: NewCalibrator(*cfg),
	}, nil
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Observe consumes one projected frame. Warm-up frames feed the calibrator
// and produce no detection, except the frame that completes the window: it
// freezes the profile and is then selected on like any live frame.
func (s *Session) Observe(d l2frames.Distances) (Detection, bool) {
	if s.phase == WarmingUp {
		done, err := s.calibrator.Add(d)
		if err != nil {
			monitoring.Logf("calibrator rejected frame: %v", err)
			return Detection{}, false
		}
		if !done {
			return Detection{}, false
		}
		s.arm()
	}
	return s.selector.Select(d), true
}

func (s *Session) arm() {
	profile, report := s.calibrator.Finalize()
	s.selector = NewSelector(profile, s.cfg.MaxThreshold)
	s.report = report
	s.calibrator = nil
	s.phase = Armed
	monitoring.Logf("background calibration finalized: %s", report)
}

// WarmupFrames returns how many frames the calibrator has consumed.
func (s *Session) WarmupFrames() int {
	if s.phase == Armed {
		return s.report.Frames
	}
	return s.calibrator.Frames()
}

// Profile returns the frozen profile once the session is Armed.
func (s *Session) Profile() (ReferenceProfile, bool) {
	if s.phase != Armed {
		return ReferenceProfile{}, false
	}
	return s.selector.Profile(), true
}

// Report returns the calibration report once the session is Armed.
func (s *Session) Report() (CalibrationReport, bool) {
	return s.report, s.phase == Armed
}

// Config returns the calibration parameters the session runs with.
func (s *Session) Config() CalibrationConfig { return s.cfg }

// MarshalText renders the phase by name in JSON status output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
