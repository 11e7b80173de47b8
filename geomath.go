package osm2graph

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

const (
	earthRadius = 6370986.884258304 // meters
	pi180       = math.Pi / 180.0

	// fixedPointScale is the number of fixed-point units per degree
	fixedPointScale = 1e7
	// elevationScale is the number of fixed-point units per meter
	elevationScale = 100.0
	// elevationMissing marks the absence of elevation in the fixed-point encoding
	elevationMissing = math.MinInt32
)

// GeoPoint representation of point on Earth
type GeoPoint struct {
	Lat float64
	Lon float64
	// Ele is elevation in meters. NaN when unknown
	Ele float64
}

// NewGeoPoint returns point without elevation
func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Lat: lat, Lon: lon, Ele: math.NaN()}
}

// String returns pretty printed value for for GeoPoint
func (gp GeoPoint) String() string {
	if math.IsNaN(gp.Ele) {
		return fmt.Sprintf("Lon: %f | Lat: %f", gp.Lon, gp.Lat)
	}
	return fmt.Sprintf("Lon: %f | Lat: %f | Ele: %.2f", gp.Lon, gp.Lat, gp.Ele)
}

// HasElevation reports whether elevation is known
func (gp GeoPoint) HasElevation() bool {
	return !math.IsNaN(gp.Ele)
}

// Equal compares coordinates and elevation. Two unknown elevations are equal.
func (gp GeoPoint) Equal(other GeoPoint) bool {
	if gp.Lat != other.Lat || gp.Lon != other.Lon {
		return false
	}
	if gp.HasElevation() != other.HasElevation() {
		return false
	}
	return !gp.HasElevation() || gp.Ele == other.Ele
}

// degreesToRadians deg = r * pi / 180
func degreesToRadians(d float64) float64 {
	return d * pi180
}

// greatCircleDistance returns distance between two geo-points (meters)
func greatCircleDistance(p, q GeoPoint) float64 {
	lat1 := degreesToRadians(p.Lat)
	lon1 := degreesToRadians(p.Lon)
	lat2 := degreesToRadians(q.Lat)
	lon2 := degreesToRadians(q.Lon)
	diffLat := lat2 - lat1
	diffLon := lon2 - lon1
	a := math.Pow(math.Sin(diffLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(diffLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	ans := c * earthRadius
	return ans
}

// getSphericalLength returns length for given line (meters)
func getSphericalLength(line []GeoPoint) float64 {
	totalLength := 0.0
	if len(line) < 2 {
		return totalLength
	}
	for i := 1; i < len(line); i++ {
		totalLength += greatCircleDistance(line[i-1], line[i])
	}
	return totalLength
}

// toFixed encodes degrees as int32 with 1e-7 degree resolution
func toFixed(deg float64) int32 {
	return int32(math.Round(deg * fixedPointScale))
}

// fromFixed decodes value produced by toFixed
func fromFixed(v int32) float64 {
	return float64(v) / fixedPointScale
}

// toFixedElevation encodes elevation as centimeters. NaN becomes elevationMissing
func toFixedElevation(ele float64) int32 {
	if math.IsNaN(ele) {
		return elevationMissing
	}
	cm := math.Round(ele * elevationScale)
	if cm <= elevationMissing {
		return elevationMissing + 1
	}
	if cm > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(cm)
}

// fromFixedElevation decodes value produced by toFixedElevation
func fromFixedElevation(v int32) float64 {
	if v == elevationMissing {
		return math.NaN()
	}
	return float64(v) / elevationScale
}

// quantize rounds point through fixed-point encoding so that towers and pillars share resolution
func quantize(p GeoPoint) GeoPoint {
	return GeoPoint{
		Lat: fromFixed(toFixed(p.Lat)),
		Lon: fromFixed(toFixed(p.Lon)),
		Ele: fromFixedElevation(toFixedElevation(p.Ele)),
	}
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// simplifyLine applies Douglas-Peucker simplification to the given line.
// Tolerance is in meters. First and last points are always kept.
// Returns new slice
func simplifyLine(line []GeoPoint, tolerance float64) []GeoPoint {
	if len(line) < 3 || tolerance <= 0 {
		return copyLine(line)
	}
	pts := make([]s2.Point, len(line))
	for i := range line {
		pts[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(line[i].Lat, line[i].Lon))
	}
	maxAngle := tolerance / earthRadius
	keep := make([]bool, len(line))
	keep[0] = true
	keep[len(line)-1] = true
	stack := [][2]int{{0, len(line) - 1}}
	for len(stack) > 0 {
		span := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		first, last := span[0], span[1]
		if last-first < 2 {
			continue
		}
		maxDist := -1.0
		maxIdx := first
		for i := first + 1; i < last; i++ {
			d := distanceToSegment(pts[i], pts[first], pts[last])
			if d > maxDist {
				maxDist = d
				maxIdx = i
			}
		}
		if maxDist > maxAngle {
			keep[maxIdx] = true
			stack = append(stack, [2]int{first, maxIdx}, [2]int{maxIdx, last})
		}
	}
	result := make([]GeoPoint, 0, len(line))
	for i := range line {
		if keep[i] {
			result = append(result, line[i])
		}
	}
	return result
}

// distanceToSegment returns angular distance (radians) from x to segment [a, b]
func distanceToSegment(x, a, b s2.Point) float64 {
	if a.ApproxEqual(b) {
		return x.Distance(a).Radians()
	}
	return s2.DistanceFromSegment(x, a, b).Radians()
}

// copyLine copies given line. Returns new slice
func copyLine(pts []GeoPoint) []GeoPoint {
	output := make([]GeoPoint, len(pts))
	copy(output, pts)
	return output
}
