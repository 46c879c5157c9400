package l3grid

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
)

// CalibrationReport summarises the warm-up window a profile was learned from.
type CalibrationReport struct {
	Frames      int     `json:"frames"`
	Clamped     int     `json:"clamped"`      // indices capped at the max threshold
	BelowMargin int     `json:"below_margin"` // indices left unchanged because they did not exceed the margin
	SpreadMean  float64 `json:"spread_mean"`  // mean of per-index (max - min) over warm-up
	SpreadStd   float64 `json:"spread_std"`
	SpreadMax   int     `json:"spread_max"`
	NoisiestIdx int     `json:"noisiest_index"`
}

func (r *CalibrationReport) computeSpread(minimum, maximum l2frames.Distances, frames int) {
	if frames == 0 {
		return
	}
	spread := make([]float64, len(minimum))
	for i := range minimum {
		s := maximum[i] - minimum[i]
		spread[i] = float64(s)
		if s > r.SpreadMax {
			r.SpreadMax, r.NoisiestIdx = s, i
		}
	}
	r.SpreadMean, r.SpreadStd = stat.MeanStdDev(spread, nil)
}

func (r CalibrationReport) String() string {
	return fmt.Sprintf("frames=%d clamped=%d below_margin=%d spread mean=%.2f std=%.2f max=%d@%d",
		r.Frames, r.Clamped, r.BelowMargin, r.SpreadMean, r.SpreadStd, r.SpreadMax, r.NoisiestIdx)
}
