package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

var (
	steeringColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	throttleColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	offsetColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	transitionColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// ControlPlot draws steering and throttle against frame id, with phase
// transitions marked on the zero line.
func ControlPlot(ticks []telemetry.Tick, transitions []telemetry.Transition) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Steering and throttle"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Command"
	p.Y.Min, p.Y.Max = -1, 1

	steer := make(plotter.XYs, 0, len(ticks))
	throttle := make(plotter.XYs, 0, len(ticks))
	for _, t := range ticks {
		steer = append(steer, plotter.XY{X: float64(t.FrameID), Y: t.Steering})
		throttle = append(throttle, plotter.XY{X: float64(t.FrameID), Y: t.Throttle})
	}

	if err := addLine(p, "steering", steer, steeringColor); err != nil {
		return nil, err
	}
	if err := addLine(p, "throttle", throttle, throttleColor); err != nil {
		return nil, err
	}
	if err := addTransitions(p, transitions); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// OffsetPlot draws the lane offset against frame id.
func OffsetPlot(ticks []telemetry.Tick, transitions []telemetry.Transition) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Lane offset"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Offset (px)"

	pts := make(plotter.XYs, 0, len(ticks))
	for _, t := range ticks {
		pts = append(pts, plotter.XY{X: float64(t.FrameID), Y: float64(t.LaneOffset)})
	}
	if err := addLine(p, "offset", pts, offsetColor); err != nil {
		return nil, err
	}
	if err := addTransitions(p, transitions); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	p.Legend.Left = false
	return p, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", label, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func addTransitions(p *plot.Plot, transitions []telemetry.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	pts := make(plotter.XYs, 0, len(transitions))
	for _, tr := range transitions {
		pts = append(pts, plotter.XY{X: float64(tr.FrameID), Y: 0})
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("transition markers: %w", err)
	}
	sc.GlyphStyle.Color = transitionColor
	sc.GlyphStyle.Shape = draw.TriangleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(4)
	p.Add(sc)
	p.Legend.Add("transition", sc)
	return nil
}

// SavePNG writes p to path at the report's standard size.
func SavePNG(p *plot.Plot, path string) error {
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
