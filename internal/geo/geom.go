package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// SRID is WGS84.
const SRID = 4326

// ToPolygon converts a ring to a go-geom polygon, closing it if needed.
func ToPolygon(ring []model.Point) (*geom.Polygon, error) {
	if len(ring) < 3 {
		return nil, eris.Errorf("geo: ring needs at least 3 points, got %d", len(ring))
	}
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, p := range ring {
		flat = append(flat, p.Lng, p.Lat)
	}
	if ring[0] != ring[len(ring)-1] {
		flat = append(flat, ring[0].Lng, ring[0].Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(SRID), nil
}

// OuterRing extracts the exterior ring of a polygon, or of the largest
// polygon of a multipolygon. Other geometry types yield nil.
func OuterRing(g geom.T) []model.Point {
	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		best := -1.0
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if a := p.Area(); a > best {
				best, poly = a, p
			}
		}
	}
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil
	}

	coords := poly.LinearRing(0).Coords()
	ring := make([]model.Point, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, model.Point{Lat: c.Y(), Lng: c.X()})
	}
	return ring
}

// BBoxPolygon returns the rectangle of b as a polygon.
func BBoxPolygon(b model.BBox) *geom.Polygon {
	p, _ := ToPolygon([]model.Point{
		{Lat: b.MinLat, Lng: b.MinLng},
		{Lat: b.MinLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MinLng},
	})
	return p
}

// EncodeEWKB encodes ring as little-endian EWKB for PostGIS. A short ring
// encodes as nil.
func EncodeEWKB(ring []model.Point) ([]byte, error) {
	if len(ring) < 3 {
		return nil, nil
	}
	poly, err := ToPolygon(ring)
	if err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode ewkb")
	}
	return data, nil
}

// DecodeEWKB is the inverse of EncodeEWKB.
func DecodeEWKB(data []byte) ([]model.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode ewkb")
	}
	return OuterRing(g), nil
}

// EncodeGeoJSON encodes ring as a GeoJSON polygon geometry.
func EncodeGeoJSON(ring []model.Point) ([]byte, error) {
	if len(ring) < 3 {
		return nil, nil
	}
	poly, err := ToPolygon(ring)
	if err != nil {
		return nil, err
	}
	data, err := geojson.Marshal(poly)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode geojson")
	}
	return data, nil
}

// DecodeGeoJSON is the inverse of EncodeGeoJSON.
func DecodeGeoJSON(data []byte) ([]model.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "geo: decode geojson")
	}
	return OuterRing(g), nil
}
