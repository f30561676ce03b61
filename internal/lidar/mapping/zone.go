package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// zoneTolerance bounds the geometry comparisons that gate a zone rebuild,
// and the degenerate at-the-reference containment test.
const zoneTolerance = 1e-5

// Zone is one immutable virtual-sensor zone: either an angular sector
// around a reference point or an orthogonal strip along the vehicle's
// longitudinal axis.
type Zone struct {
	Angular   bool
	Reference r2.Vec

	// Angular sector bounds, radians normalised into [0, 2pi). WrapAround
	// marks a sector straddling 0.
	LowerAngle float64
	UpperAngle float64
	WrapAround bool

	// Orthogonal strip extent along the longitudinal (x) axis, the side of
	// the vehicle it covers (sign of y), and an optional lateral extent.
	OrthMinX     float64
	OrthMaxX     float64
	OrthSideSign float64
	OrthSpanY    bool
	OrthMinY     float64
	OrthMaxY     float64
}

// Contains reports whether a vehicle-frame 2D position falls inside the
// zone.
//
// Angular zones accept a point sitting on the reference itself (the angle
// is undefined there); otherwise the point's normalised angle must fall in
// [lower, upper], where a wrapping sector tests the two half-ranges with
// an "or" instead of an "and". Orthogonal zones reject the wrong side of
// the vehicle first, then apply the lateral extent when configured, then
// the longitudinal extent.
func (z *Zone) Contains(p r2.Vec) bool {
	if z.Angular {
		rel := r2.Sub(p, z.Reference)
		if r2.Norm2(rel) < zoneTolerance {
			return true
		}
		angle := math.Atan2(rel.Y, rel.X)
		if angle < 0 {
			angle += 2 * math.Pi
		}
		if z.WrapAround {
			return angle >= z.LowerAngle || angle <= z.UpperAngle
		}
		return angle >= z.LowerAngle && angle <= z.UpperAngle
	}

	if z.OrthSideSign > 0 && p.Y < 0 {
		return false
	}
	if z.OrthSideSign < 0 && p.Y > 0 {
		return false
	}
	if z.OrthSpanY {
		minY := math.Min(z.OrthMinY, z.OrthMaxY)
		maxY := math.Max(z.OrthMinY, z.OrthMaxY)
		if p.Y < minY || p.Y > maxY {
			return false
		}
	}
	return p.X >= z.OrthMinX && p.X <= z.OrthMaxX
}

// normalizeAngle maps an angle into [0, 2pi).
func normalizeAngle(angle float64) float64 {
	normalized := math.Mod(angle, 2*math.Pi)
	if normalized < 0 {
		normalized += 2 * math.Pi
	}
	return normalized
}

// appendAngularRing appends count equal sectors sweeping from startAngle
// around reference, covering a total angle of span. Sector bounds are
// normalised into [0, 2pi); a sector whose normalised upper bound lands
// below its lower bound wraps across 0.
func appendAngularRing(zones []Zone, reference r2.Vec, startAngle, span float64, count int) []Zone {
	delta := span / float64(count)
	theta := startAngle
	for k := 0; k < count; k++ {
		lower := normalizeAngle(theta)
		theta += delta
		upper := normalizeAngle(theta)
		zones = append(zones, Zone{
			Angular:    true,
			Reference:  reference,
			LowerAngle: lower,
			UpperAngle: upper,
			WrapAround: upper < lower,
		})
	}
	return zones
}

// appendOrthogonalStrips appends count strips along x from fromX to toX.
// The sign of the construction step selects the vehicle side the strips
// observe: stepping towards the front covers the left (y > 0) side,
// stepping towards the rear the right.
func appendOrthogonalStrips(zones []Zone, fromX, toX float64, count int) []Zone {
	step := (toX - fromX) / float64(count)
	sideSign := 1.0
	if step < 0 {
		sideSign = -1.0
	}
	x := fromX
	for k := 0; k < count; k++ {
		a := x
		x += step
		b := x
		zones = append(zones, Zone{
			Reference:    r2.Vec{X: (a + b) / 2},
			OrthMinX:     math.Min(a, b),
			OrthMaxX:     math.Max(a, b),
			OrthSideSign: sideSign,
		})
	}
	return zones
}
