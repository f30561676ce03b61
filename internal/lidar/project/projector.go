// Package project converts decoded scans into Cartesian point clouds in
// the sensor frame.
package project

import (
	"math"

	"github.com/banshee-data/freespace.report/internal/lidar"
	"github.com/banshee-data/freespace.report/internal/lidar/capture"
)

// nominalSpinRPM is the spin rate the supported units run at in the
// capture archive. Expressed per microsecond it gives the azimuth the head
// sweeps between consecutive laser firings.
const nominalSpinRPM = 600.0

// minMaxRange is the lower clamp applied to the configured maximum range.
const minMaxRange = 0.01

// hardwareParams carries the per-model conversion parameters.
type hardwareParams struct {
	metersPerTick  float64 // raw range tick to meters
	firingInterval float64 // microseconds between consecutive laser firings
	verticalAngles *[capture.BeamsPerBlock]float64
}

// Per-beam vertical angles in radians, indexed by beam number within a
// firing. The tables interleave the lasers in their physical firing order.
var hdl32eVerticalAngles = [capture.BeamsPerBlock]float64{
	-0.535293, -0.162839, -0.511905, -0.139626, -0.488692, -0.116239, -0.465305, -0.093026,
	-0.442092, -0.069813, -0.418879, -0.046600, -0.395666, -0.023213, -0.372279, 0.0,
	-0.349066, 0.023213, -0.325853, 0.046600, -0.302466, 0.069813, -0.279253, 0.093026,
	-0.256040, 0.116413, -0.232652, 0.139626, -0.209440, 0.162839, -0.186227, 0.186227,
}

// VLP-16 uses only the first 16 entries; the rest are never indexed
// because the hardware configuration limits beams per firing to 16.
var vlp16VerticalAngles = [capture.BeamsPerBlock]float64{
	-0.261799, 0.0174533, -0.226893, 0.0523599, -0.191986, 0.0872665, -0.15708, 0.122173,
	-0.122173, 0.15708, -0.0872665, 0.191986, -0.0523599, 0.226893, -0.0174533, 0.261799,
}

// paramsFor returns the conversion parameters for a hardware variant.
// VLP-32C captures and unknown hardware fall back to the HDL-32E set,
// matching the decoder's default configuration.
func paramsFor(hw capture.Hardware) hardwareParams {
	switch hw {
	case capture.HardwareVLP16:
		return hardwareParams{metersPerTick: 0.002, firingInterval: 2.304, verticalAngles: &vlp16VerticalAngles}
	default:
		return hardwareParams{metersPerTick: 0.002, firingInterval: 1.152, verticalAngles: &hdl32eVerticalAngles}
	}
}

// Projector converts scans from one hardware variant into point clouds.
type Projector struct {
	params   hardwareParams
	maxRange float64
	spinRate float64 // radians per microsecond
}

// NewProjector builds a projector for the given hardware. maxRange is the
// discard threshold in meters and is clamped to a small positive minimum.
func NewProjector(hw capture.Hardware, maxRange float64) *Projector {
	return &Projector{
		params:   paramsFor(hw),
		maxRange: math.Max(minMaxRange, maxRange),
		spinRate: nominalSpinRPM / 60.0 * 2 * math.Pi / 1e6,
	}
}

// MaxRange returns the configured range cutoff in meters.
func (p *Projector) MaxRange() float64 { return p.maxRange }

// Project converts one scan into sensor-frame points, appending to dst and
// returning the extended slice. Beams with no return (range 0) and beams
// beyond the range cutoff are dropped.
//
// The horizontal angle of each beam adds a spin-rate correction on top of
// the firing azimuth: lasers within one firing sequence fire one interval
// apart while the head keeps turning, so later beams see a slightly larger
// azimuth.
func (p *Projector) Project(scan *capture.Scan, dst []lidar.Point) []lidar.Point {
	if scan == nil || len(scan.Firings) == 0 {
		return dst
	}
	if dst == nil {
		dst = make([]lidar.Point, 0, len(scan.Firings)*len(scan.Firings[0].Beams))
	}

	for fi := range scan.Firings {
		firing := &scan.Firings[fi]
		baseTheta := float64(firing.Azimuth) * lidar.RadiansPerTick

		for beam, sample := range firing.Beams {
			if sample.Range == 0 {
				continue
			}
			r := float64(sample.Range) * p.params.metersPerTick
			if r > p.maxRange {
				continue
			}

			phi := p.params.verticalAngles[beam]
			theta := baseTheta + p.spinRate*float64(beam)*p.params.firingInterval

			cosPhi := math.Cos(phi)
			dst = append(dst, lidar.Point{
				X:         r * cosPhi * math.Cos(theta),
				Y:         -r * cosPhi * math.Sin(theta),
				Z:         r * math.Sin(phi),
				Intensity: float64(sample.Reflectivity) / 255.0,
			})
		}
	}
	return dst
}
