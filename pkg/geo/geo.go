package geo

import "math"

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0
)

// Point represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Point struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64 `json:"lon"`
}

// Region describes a map viewport: a center point plus the latitude and
// longitude spans that must be visible around it.
type Region struct {
	Center   Point   `json:"center"`
	LatDelta float64 `json:"latDelta"`
	LonDelta float64 `json:"lonDelta"`
}

// Bounds is an axis-aligned bounding box over points.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// CloseZoomDelta is the span used when centering on a single marker.
// Roughly a neighborhood-level view.
const CloseZoomDelta = 0.01

// DefaultRegion is the fallback viewport when no markers are available:
// central Dhaka.
var DefaultRegion = Region{
	Center:   Point{Latitude: 23.8103, Longitude: 90.4125},
	LatDelta: 0.20,
	LonDelta: 0.20,
}

// Valid reports whether the point is a plausible WGS84 coordinate.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceKm returns the great-circle distance between two points in
// kilometers using the haversine formula.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Latitude * DegreesToRadians
	lat2 := b.Latitude * DegreesToRadians
	dLat := (b.Latitude - a.Latitude) * DegreesToRadians
	dLon := (b.Longitude - a.Longitude) * DegreesToRadians

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundsOf computes the bounding box of a set of points.
// Returns ok=false for an empty set.
func BoundsOf(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		MinLat: points[0].Latitude,
		MaxLat: points[0].Latitude,
		MinLon: points[0].Longitude,
		MaxLon: points[0].Longitude,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}
	return b, true
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() Point {
	return Point{
		Latitude:  (b.MinLat + b.MaxLat) / 2,
		Longitude: (b.MinLon + b.MaxLon) / 2,
	}
}

// FitRegion converts bounds into a viewport region with the given padding
// fraction (e.g. 0.2 adds 20% of the span on each axis). Degenerate bounds
// (a single point) fall back to CloseZoomDelta so the camera does not zoom
// to an infinitesimal area.
func (b Bounds) FitRegion(padding float64) Region {
	latDelta := (b.MaxLat - b.MinLat) * (1 + padding)
	lonDelta := (b.MaxLon - b.MinLon) * (1 + padding)
	if latDelta < CloseZoomDelta {
		latDelta = CloseZoomDelta
	}
	if lonDelta < CloseZoomDelta {
		lonDelta = CloseZoomDelta
	}
	return Region{
		Center:   b.Center(),
		LatDelta: latDelta,
		LonDelta: lonDelta,
	}
}

// RegionAround returns a close-zoom region centered on a single point.
func RegionAround(p Point) Region {
	return Region{
		Center:   p,
		LatDelta: CloseZoomDelta,
		LonDelta: CloseZoomDelta,
	}
}

// Contains reports whether the point lies inside the region's viewport.
func (r Region) Contains(p Point) bool {
	return math.Abs(p.Latitude-r.Center.Latitude) <= r.LatDelta/2 &&
		math.Abs(p.Longitude-r.Center.Longitude) <= r.LonDelta/2
}
