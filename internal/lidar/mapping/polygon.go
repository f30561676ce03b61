package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// degenerateSlope substitutes for a zero edge rise in the crossing test so
// the division below cannot blow up on malformed contours.
const degenerateSlope = 1e-12

// pointInPolygon runs the horizontal ray-casting parity test against a
// closed polygon. Contours with fewer than three vertices cannot enclose
// anything and always report false.
func pointInPolygon(contour []r2.Vec, p r2.Vec) bool {
	if len(contour) < 3 {
		return false
	}

	inside := false
	j := len(contour) - 1
	for i := range contour {
		a := contour[i]
		b := contour[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			dy := b.Y - a.Y
			if dy == 0 {
				dy = degenerateSlope
			}
			if p.X < (b.X-a.X)*(p.Y-a.Y)/dy+a.X {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// contourCenter returns the vertex centroid of a contour and the radius of
// the smallest circle centred there that covers every vertex.
func contourCenter(contour []r2.Vec) (center r2.Vec, radius float64) {
	if len(contour) == 0 {
		return r2.Vec{}, 0
	}
	for _, v := range contour {
		center = r2.Add(center, v)
	}
	center = r2.Scale(1/float64(len(contour)), center)

	maxDistSq := 0.0
	for _, v := range contour {
		maxDistSq = math.Max(maxDistSq, r2.Norm2(r2.Sub(v, center)))
	}
	return center, math.Sqrt(maxDistSq)
}
