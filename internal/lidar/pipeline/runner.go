package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/sentry/internal/lidar/l1packets"
	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/l3grid"
	"github.com/banshee-data/sentry/internal/monitoring"
	"github.com/banshee-data/sentry/internal/serialmux"
)

// Runner drives one detection session over a sensor byte stream. Each frame
// is synchronized, decoded, projected, and calibrated on or selected on, and
// its command is dispatched before the next byte is read.
type Runner struct {
	cfg     Config
	session *l3grid.Session

	mu     sync.Mutex
	status Status
}

// NewRunner validates cfg and creates a Runner with a fresh session.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	session, err := l3grid.NewSession(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		session: session,
		status:  Status{Phase: session.Phase()},
	}, nil
}

// Status returns a snapshot of the runner. It is safe to call from any
// goroutine while Run is in progress.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if s.LastDetection != nil {
		d := *s.LastDetection
		s.LastDetection = &d
	}
	return s
}

// Run consumes src until it ends, fails, or ctx is done. Read timeouts and
// actuator write timeouts are absorbed. A cancelled ctx returns nil; end of
// input returns l1packets.ErrStreamClosed; any other read or write failure is
// returned wrapped in l1packets.ErrIOFailure. Failures observed after ctx is
// done are reported as a clean stop.
func (r *Runner) Run(ctx context.Context, src io.Reader) error {
	synchronizer := l1packets.NewSynchronizer(src, r.cfg.Sync)

	r.mu.Lock()
	r.status.StartedAt = r.cfg.Clock.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.status.Sync = synchronizer.Stats()
		r.mu.Unlock()
	}()

	for raw, err := range synchronizer.Frames(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				monitoring.Logf("pipeline stopped: %v", ctx.Err())
				return nil
			}
			return err
		}
		if err := r.processFrame(ctx, raw, synchronizer.Stats()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *Runner) processFrame(ctx context.Context, raw l1packets.RawFrame, stats l1packets.SyncStats) error {
	now := r.cfg.Clock.Now()
	distances := l2frames.ProjectFrame(raw.Decode(), r.cfg.Rounding)

	wasArmed := r.session.Phase() == l3grid.Armed
	det, live := r.session.Observe(distances)
	if !wasArmed && r.session.Phase() == l3grid.Armed {
		r.onArmed(now)
	}

	r.mu.Lock()
	r.status.Frames = stats.Frames
	r.status.Sync = stats
	r.status.LastFrameAt = now
	r.status.LastDistances = distances
	r.status.Phase = r.session.Phase()
	r.status.WarmupFrames = r.session.WarmupFrames()
	r.mu.Unlock()

	if !live {
		return nil
	}

	cmd := det.Command
	monitoring.Debugf("%t %d %d %d", cmd.Fire(), cmd.Index(), det.Distance, det.Reference)

	err := r.cfg.Sink.SendCommand(ctx, []byte{byte(cmd)})
	switch {
	case err == nil:
	case errors.Is(err, serialmux.ErrWriteTimeout):
		r.mu.Lock()
		r.status.DroppedWrite++
		dropped := r.status.DroppedWrite
		r.mu.Unlock()
		monitoring.Logf("actuator write timed out, dropped command %s (dropped=%d)", cmd, dropped)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: actuator write: %w", l1packets.ErrIOFailure, err)
	}

	r.mu.Lock()
	r.status.Commands++
	if cmd.Fire() {
		r.status.Fires++
	}
	r.status.LastDetection = &det
	r.mu.Unlock()

	if r.cfg.Publisher != nil {
		r.cfg.Publisher.Publish(fmt.Sprintf("seq=%d cmd=0x%02x index=%d fire=%t distance=%d reference=%d",
			stats.Frames, byte(cmd), cmd.Index(), cmd.Fire(), det.Distance, det.Reference))
	}
	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.RecordDetection(now, stats.Frames, det); err != nil {
			monitoring.Logf("failed to record detection: %v", err)
		}
	}
	return nil
}

func (r *Runner) onArmed(now time.Time) {
	profile, _ := r.session.Profile()
	report, _ := r.session.Report()

	d := profile.Distances()
	r.mu.Lock()
	r.status.Profile = &d
	r.status.Report = &report
	r.mu.Unlock()

	if r.cfg.Publisher != nil {
		r.cfg.Publisher.Publish("calibration finalized: " + report.String())
	}
	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.RecordCalibration(now, profile, report); err != nil {
			monitoring.Logf("failed to record calibration: %v", err)
		}
	}
}
