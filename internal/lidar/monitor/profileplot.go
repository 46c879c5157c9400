package monitor

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// DetectionPoint is one selected target drawn over the profile.
type DetectionPoint struct {
	Index    int
	Distance int
	Fire     bool
}

// ProfilePlot draws a reference profile with the detections recorded against
// it: fired targets in red, held targets in grey.
type ProfilePlot struct {
	Title      string
	Profile    l2frames.Distances
	Detections []DetectionPoint
}

func (pp *ProfilePlot) build() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = pp.Title
	p.X.Label.Text = "Angle index"
	p.Y.Label.Text = "Distance"
	p.X.Min = 0
	p.X.Max = float64(len(pp.Profile) - 1)

	refPts := make(plotter.XYs, len(pp.Profile))
	for i, v := range pp.Profile {
		refPts[i].X = float64(i)
		refPts[i].Y = float64(v)
	}
	refLine, err := plotter.NewLine(refPts)
	if err != nil {
		return nil, fmt.Errorf("reference line: %w", err)
	}
	refLine.Width = vg.Points(1)
	refLine.Color = color.RGBA{R: 33, G: 150, B: 243, A: 255}
	p.Add(refLine)
	p.Legend.Add("reference", refLine)

	var fired, held plotter.XYs
	for _, d := range pp.Detections {
		pt := plotter.XY{X: float64(d.Index), Y: float64(d.Distance)}
		if d.Fire {
			fired = append(fired, pt)
		} else {
			held = append(held, pt)
		}
	}
	if err := addScatter(p, "held", held, color.RGBA{R: 158, G: 158, B: 158, A: 255}); err != nil {
		return nil, err
	}
	if err := addScatter(p, "fired", fired, color.RGBA{R: 255, G: 82, B: 82, A: 255}); err != nil {
		return nil, err
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func addScatter(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("%s scatter: %w", label, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(3)
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

// WritePNG renders the plot as PNG to w.
func (pp *ProfilePlot) WritePNG(w io.Writer) error {
	p, err := pp.build()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// Save renders the plot to path, which must end in .png. Missing parent
// directories are created.
func (pp *ProfilePlot) Save(path string) error {
	if filepath.Ext(path) != ".png" {
		return fmt.Errorf("output file must have .png extension, got %q", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pp.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
