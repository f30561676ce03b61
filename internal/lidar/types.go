// Package lidar holds the types shared by the capture decoding, geometry
// projection and virtual-sensor mapping layers.
//
// Layer packages: capture (wire decode + timestamp arbitration), project
// (spherical to Cartesian), mapping (virtual sensor zones), capturedb
// (session metadata store), monitor (diagnostic plots).
package lidar

// Point is a single LiDAR return in Cartesian sensor-frame coordinates.
// Depending on the pipeline stage the frame is sensor-relative or
// vehicle-relative; the mapping layer applies the mount offset itself.
type Point struct {
	X, Y, Z   float64 // Position (meters)
	Intensity float64 // Normalised reflectivity, 0.0 to 1.0
}

// RotationTicks is the number of azimuth ticks in a full revolution.
// One tick is one hundredth of a degree.
const RotationTicks = 36000

// RadiansPerTick converts an azimuth tick count to radians.
const RadiansPerTick = 1.745329251994329e-04
