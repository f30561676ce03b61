// Package mapping approximates a ring of simple proximity sensors around a
// vehicle from LiDAR point clouds.
//
// A Map partitions the horizontal plane into a fixed set of zones, tracks
// the nearest return per zone each frame, splits returns into ground and
// non-ground against a floor height, excludes returns inside the vehicle's
// own body contour, and exposes the resulting free-space perimeter hulls
// and per-zone snapshots. A Map is not safe for concurrent use; each
// UpdatePoints call fully resets and rebuilds the per-frame samples.
package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/freespace.report/internal/lidar"
)

// LayoutKind selects how the zone ring is constructed.
type LayoutKind int

const (
	// LayoutRing places equal angular sectors around the vehicle contour's
	// centroid.
	LayoutRing LayoutKind = iota
	// LayoutPerimeter places half-circles of angular sectors at the front
	// and rear bumper reference points with orthogonal strips along each
	// side between them.
	LayoutPerimeter
)

// Config holds the construction parameters of a Map.
type Config struct {
	Layout LayoutKind

	// AngularZones is the total sector count: the full ring for LayoutRing,
	// or split evenly between the front and rear half-circles for
	// LayoutPerimeter.
	AngularZones int

	// OrthogonalZones is the strip count per vehicle side (LayoutPerimeter
	// only).
	OrthogonalZones int

	// FloorHeight splits ground from non-ground returns: z below it is
	// ground.
	FloorHeight float64

	// ForwardOffset and RearOffset place the bumper reference points on
	// the longitudinal axis (LayoutPerimeter only).
	ForwardOffset float64
	RearOffset    float64

	// SensorOffset is the 2D sensor mount position in the vehicle frame;
	// it is subtracted from every input point.
	SensorOffset r2.Vec
}

// DefaultRingConfig matches the deployed single-ring mapping: 24 sectors
// about the contour centroid with the floor at -1.8 m.
func DefaultRingConfig() Config {
	return Config{Layout: LayoutRing, AngularZones: 24, FloorHeight: -1.8}
}

// DefaultPerimeterConfig matches the deployed bumper-referenced mapping.
func DefaultPerimeterConfig() Config {
	return Config{
		Layout:          LayoutPerimeter,
		AngularZones:    24,
		OrthogonalZones: 8,
		FloorHeight:     -1.8,
		ForwardOffset:   3.0,
		RearOffset:      -0.2,
	}
}

// Sample is the per-zone per-frame nearest accepted return.
type Sample struct {
	Valid           bool
	DistanceSquared float64 // from the zone's reference point
	Position        r2.Vec
}

// Snapshot combines a zone's geometry with its current sample for external
// rendering and debugging.
type Snapshot struct {
	Valid        bool
	Angular      bool
	Reference    r2.Vec
	LowerAngle   float64
	UpperAngle   float64
	WrapAround   bool
	OrthMinX     float64
	OrthMaxX     float64
	OrthSideSign float64
	OrthMinY     float64
	OrthMaxY     float64

	Position        r2.Vec
	DistanceSquared float64
}

// Map maintains the virtual-sensor zone ring and its per-frame samples.
type Map struct {
	cfg Config

	contour []r2.Vec
	center  r2.Vec
	radius  float64

	zones         []Zone
	samples       []Sample // non-ground
	groundSamples []Sample

	hullNonGround []r2.Vec
	hullGround    []r2.Vec
}

// New constructs a Map and builds its zone layout. Zone counts default to
// the deployed configuration when left zero.
func New(cfg Config) *Map {
	if cfg.AngularZones <= 0 {
		cfg.AngularZones = 24
	}
	if cfg.Layout == LayoutPerimeter && cfg.OrthogonalZones <= 0 {
		cfg.OrthogonalZones = 8
	}
	m := &Map{cfg: cfg}
	m.rebuild()
	return m
}

// SetFloorHeight updates the ground classification threshold. Changes
// within tolerance are ignored.
func (m *Map) SetFloorHeight(floorHeight float64) {
	if math.Abs(floorHeight-m.cfg.FloorHeight) < zoneTolerance {
		return
	}
	m.cfg.FloorHeight = floorHeight
}

// SetSensorOffset updates the 2D sensor mount offset. Changes within
// tolerance are ignored.
func (m *Map) SetSensorOffset(offset r2.Vec) {
	if r2.Norm(r2.Sub(offset, m.cfg.SensorOffset)) < zoneTolerance {
		return
	}
	m.cfg.SensorOffset = offset
}

// SetOffsets updates the bumper reference offsets, rebuilding the zone
// layout when either moves beyond tolerance. Only meaningful for
// LayoutPerimeter; the ring layout derives its reference from the contour.
func (m *Map) SetOffsets(forward, rear float64) {
	forwardChanged := math.Abs(forward-m.cfg.ForwardOffset) > zoneTolerance
	rearChanged := math.Abs(rear-m.cfg.RearOffset) > zoneTolerance
	if !forwardChanged && !rearChanged {
		return
	}
	m.cfg.ForwardOffset = forward
	m.cfg.RearOffset = rear
	if m.cfg.Layout == LayoutPerimeter {
		m.rebuild()
	}
}

// SetVehicleContour installs the body contour polygon used both to exclude
// self-returns and, for the ring layout, to derive the zone reference
// geometry. The layout only rebuilds when the derived centroid or radius
// moves beyond tolerance, so feeding the same profile every frame is free.
func (m *Map) SetVehicleContour(contour []r2.Vec) {
	if len(contour) == 0 {
		return
	}
	m.contour = append(m.contour[:0], contour...)

	center, radius := contourCenter(contour)
	centerChanged := r2.Norm2(r2.Sub(center, m.center)) > zoneTolerance*zoneTolerance
	radiusChanged := math.Abs(radius-m.radius) > zoneTolerance
	if !centerChanged && !radiusChanged {
		return
	}

	m.center = center
	m.radius = radius
	m.rebuild()
}

// rebuild reconstructs the zone layout and discards all accumulated
// samples. Called on construction and when vehicle geometry changes beyond
// tolerance; never per frame.
func (m *Map) rebuild() {
	m.zones = m.zones[:0]
	switch m.cfg.Layout {
	case LayoutPerimeter:
		frontRef := r2.Vec{X: m.cfg.ForwardOffset}
		rearRef := r2.Vec{X: m.cfg.RearOffset}
		half := m.cfg.AngularZones / 2

		// Front half-circle sweeps from straight right around the nose to
		// straight left; left strips step towards the front, right strips
		// towards the rear, the step sign fixing the side each covers.
		m.zones = appendAngularRing(m.zones, frontRef, -math.Pi/2, math.Pi, half)
		m.zones = appendOrthogonalStrips(m.zones, m.cfg.RearOffset, m.cfg.ForwardOffset, m.cfg.OrthogonalZones)
		m.zones = appendAngularRing(m.zones, rearRef, math.Pi/2, math.Pi, half)
		m.zones = appendOrthogonalStrips(m.zones, m.cfg.ForwardOffset, m.cfg.RearOffset, m.cfg.OrthogonalZones)
	default:
		m.zones = appendAngularRing(m.zones, m.center, 0, 2*math.Pi, m.cfg.AngularZones)
	}

	m.samples = make([]Sample, len(m.zones))
	m.groundSamples = make([]Sample, len(m.zones))
	m.resetSamples()
	m.hullNonGround = m.hullNonGround[:0]
	m.hullGround = m.hullGround[:0]
}

func (m *Map) resetSamples() {
	for i := range m.samples {
		m.samples[i] = Sample{DistanceSquared: math.Inf(1)}
		m.groundSamples[i] = Sample{DistanceSquared: math.Inf(1)}
	}
}

// UpdatePoints ingests one frame of points: every zone sample is reset,
// each point is shifted by the sensor offset, body-contour returns are
// dropped, the rest classify against the floor height and compete for the
// zones that contain them. The nearest point per zone wins with a strict
// comparison, so ties keep the first point encountered in input order.
func (m *Map) UpdatePoints(points []lidar.Point) {
	m.resetSamples()

	for i := range points {
		pos := r2.Sub(r2.Vec{X: points[i].X, Y: points[i].Y}, m.cfg.SensorOffset)
		if pointInPolygon(m.contour, pos) {
			continue
		}

		samples := m.samples
		if points[i].Z < m.cfg.FloorHeight {
			samples = m.groundSamples
		}

		for zi := range m.zones {
			zone := &m.zones[zi]
			if !zone.Contains(pos) {
				continue
			}
			distSq := r2.Norm2(r2.Sub(pos, zone.Reference))
			sample := &samples[zi]
			if distSq < sample.DistanceSquared {
				sample.Valid = true
				sample.DistanceSquared = distSq
				sample.Position = pos
			}
		}
	}

	m.hullNonGround = appendHull(m.hullNonGround[:0], m.samples)
	m.hullGround = appendHull(m.hullGround[:0], m.groundSamples)
}

func appendHull(hull []r2.Vec, samples []Sample) []r2.Vec {
	for i := range samples {
		if samples[i].Valid {
			hull = append(hull, samples[i].Position)
		}
	}
	return hull
}

// Hull returns the non-ground free-space perimeter: the valid zone sample
// positions in zone index order. The slice is reused across frames; copy
// it to retain.
func (m *Map) Hull() []r2.Vec { return m.hullNonGround }

// NonGroundHull is an explicit alias of Hull.
func (m *Map) NonGroundHull() []r2.Vec { return m.hullNonGround }

// GroundHull returns the perimeter formed by ground-classified returns.
func (m *Map) GroundHull() []r2.Vec { return m.hullGround }

// ZoneCount returns the number of zones in the current layout.
func (m *Map) ZoneCount() int { return len(m.zones) }

// Snapshots returns the zone geometry and current non-ground sample for
// every zone, in zone index order. The returned slice is freshly
// allocated; mutating it has no effect on the map.
func (m *Map) Snapshots() []Snapshot {
	out := make([]Snapshot, len(m.zones))
	for i := range m.zones {
		zone := &m.zones[i]
		sample := &m.samples[i]
		out[i] = Snapshot{
			Valid:           sample.Valid,
			Angular:         zone.Angular,
			Reference:       zone.Reference,
			LowerAngle:      zone.LowerAngle,
			UpperAngle:      zone.UpperAngle,
			WrapAround:      zone.WrapAround,
			OrthMinX:        zone.OrthMinX,
			OrthMaxX:        zone.OrthMaxX,
			OrthSideSign:    zone.OrthSideSign,
			OrthMinY:        zone.OrthMinY,
			OrthMaxY:        zone.OrthMaxY,
			Position:        sample.Position,
			DistanceSquared: sample.DistanceSquared,
		}
	}
	return out
}
