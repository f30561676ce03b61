// Package monitor renders diagnostic plots of the virtual-sensor mapping
// state for tuning and offline inspection.
package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/freespace.report/internal/lidar/mapping"
)

// HullPlotter draws the free-space hulls and per-zone samples of a mapping
// run as a top-down 2D plot.
type HullPlotter struct {
	// PlotSize is the output edge length; zero means 8 inches.
	PlotSize vg.Length
}

// SavePlot renders the current state of m to a PNG at path: the vehicle
// contour (when set via the snapshots' references), the ground hull, the
// non-ground hull, and every valid zone sample as a scatter mark.
func (hp *HullPlotter) SavePlot(m *mapping.Map, contour []plotter.XY, path string) error {
	if m == nil {
		return fmt.Errorf("monitor: nil map")
	}

	p := plot.New()
	p.Title.Text = "virtual sensor hulls"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	if len(contour) >= 3 {
		// Close the contour ring for drawing.
		ring := make(plotter.XYs, 0, len(contour)+1)
		ring = append(ring, contour...)
		ring = append(ring, contour[0])
		contourLine, err := plotter.NewLine(ring)
		if err != nil {
			return fmt.Errorf("monitor: contour line: %w", err)
		}
		contourLine.Width = vg.Points(1)
		contourLine.Color = color.Gray{Y: 128}
		p.Add(contourLine)
		p.Legend.Add("contour", contourLine)
	}

	if err := addHull(p, "ground", m.GroundHull(), color.RGBA{R: 180, G: 120, B: 40, A: 255}); err != nil {
		return err
	}
	if err := addHull(p, "non-ground", m.NonGroundHull(), color.RGBA{R: 40, G: 90, B: 200, A: 255}); err != nil {
		return err
	}

	samples := make(plotter.XYs, 0, m.ZoneCount())
	for _, snap := range m.Snapshots() {
		if snap.Valid {
			samples = append(samples, plotter.XY{X: snap.Position.X, Y: snap.Position.Y})
		}
	}
	if len(samples) > 0 {
		scatter, err := plotter.NewScatter(samples)
		if err != nil {
			return fmt.Errorf("monitor: sample scatter: %w", err)
		}
		scatter.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add("zone samples", scatter)
	}

	size := hp.PlotSize
	if size == 0 {
		size = 8 * vg.Inch
	}
	if err := p.Save(size, size, path); err != nil {
		return fmt.Errorf("monitor: save hull plot: %w", err)
	}
	return nil
}

// addHull draws one hull as a closed polyline. Empty hulls draw nothing.
func addHull(p *plot.Plot, name string, hull []r2.Vec, c color.Color) error {
	if len(hull) == 0 {
		return nil
	}
	pts := make(plotter.XYs, 0, len(hull)+1)
	for _, v := range hull {
		pts = append(pts, plotter.XY{X: v.X, Y: v.Y})
	}
	pts = append(pts, plotter.XY{X: hull[0].X, Y: hull[0].Y})

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("monitor: %s hull line: %w", name, err)
	}
	line.Width = vg.Points(1.5)
	line.Color = c
	p.Add(line)
	p.Legend.Add(name+" hull", line)
	return nil
}
