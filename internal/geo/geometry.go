// Package geo provides the planar approximations used to place, size, and
// classify candidate parcels.
package geo

import (
	"math"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// MetersPerDegree is the fixed length of one degree of latitude (~111 km).
const MetersPerDegree = 111000.0

// DegreesPerMeter converts a latitude distance to degrees.
const DegreesPerMeter = 1.0 / MetersPerDegree

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b model.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// lngDegreesPerMeter accounts for meridian convergence at the given latitude.
func lngDegreesPerMeter(lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < 1e-6 {
		c = 1e-6
	}
	return DegreesPerMeter / c
}

// Offset moves p by the given north/east distances in meters.
func Offset(p model.Point, northMeters, eastMeters float64) model.Point {
	return model.Point{
		Lat: p.Lat + northMeters*DegreesPerMeter,
		Lng: p.Lng + eastMeters*lngDegreesPerMeter(p.Lat),
	}
}

// BBoxAround returns a box extending halfWidthMeters on each side of center.
func BBoxAround(center model.Point, halfWidthMeters float64) model.BBox {
	sw := Offset(center, -halfWidthMeters, -halfWidthMeters)
	ne := Offset(center, halfWidthMeters, halfWidthMeters)
	return model.BBox{MinLat: sw.Lat, MinLng: sw.Lng, MaxLat: ne.Lat, MaxLng: ne.Lng}
}

// SquareAround returns a closed square ring of the given side centered on c.
func SquareAround(c model.Point, sideMeters float64) []model.Point {
	h := sideMeters / 2
	sw := Offset(c, -h, -h)
	ne := Offset(c, h, h)
	return []model.Point{
		{Lat: sw.Lat, Lng: sw.Lng},
		{Lat: sw.Lat, Lng: ne.Lng},
		{Lat: ne.Lat, Lng: ne.Lng},
		{Lat: ne.Lat, Lng: sw.Lng},
		{Lat: sw.Lat, Lng: sw.Lng},
	}
}

// ShoelaceArea returns the planar area of ring in square degrees.
// The ring may be open or closed.
func ShoelaceArea(ring []model.Point) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].Lng*ring[j].Lat - ring[j].Lng*ring[i].Lat
	}
	return math.Abs(sum) / 2
}

// AreaSquareMeters converts the shoelace area with the fixed 111 km/° factor.
func AreaSquareMeters(ring []model.Point) float64 {
	return ShoelaceArea(ring) * MetersPerDegree * MetersPerDegree
}

// Centroid returns the vertex average of ring, ignoring a closing duplicate.
func Centroid(ring []model.Point) model.Point {
	pts := ring
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	if len(pts) == 0 {
		return model.Point{}
	}
	var c model.Point
	for _, p := range pts {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	c.Lat /= float64(len(pts))
	c.Lng /= float64(len(pts))
	return c
}

// PointInRing reports whether p lies inside ring (even-odd rule).
func PointInRing(p model.Point, ring []model.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lng < (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			inside = !inside
		}
	}
	return inside
}

// WalkingMeters is the distance covered in the given minutes at 5 km/h.
func WalkingMeters(minutes int) float64 {
	return float64(minutes) * 5000.0 / 60.0
}
