package model

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BBox is a WGS84 bounding box.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

// Contains reports whether p lies inside the box.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// CandidateSource records which strategy produced a candidate.
type CandidateSource string

const (
	SourceAddress    CandidateSource = "address"
	SourceParcelScan CandidateSource = "parcel-scan"
)

// Cadastral identifies a cadastral parcel.
type Cadastral struct {
	ID      string  `json:"id"`
	Commune string  `json:"commune,omitempty"`
	Section string  `json:"section"`
	Number  string  `json:"number"`
	AreaM2  float64 `json:"area_m2,omitempty"`
}

// SalesContext summarizes recent transactions around a point.
type SalesContext struct {
	Count         int      `json:"count"`
	AvgPrice      *float64 `json:"avg_price,omitempty"`
	AvgSurface    *float64 `json:"avg_surface,omitempty"`
	DensityPerKm2 float64  `json:"density_per_km2"`
	RadiusMeters  float64  `json:"radius_m"`
}

// Candidate is a provisional location considered for matching. It is
// enriched before scoring and not mutated afterwards.
type Candidate struct {
	ID             string          `json:"id"`
	Source         CandidateSource `json:"source"`
	Centroid       Point           `json:"centroid"`
	Polygon        []Point         `json:"polygon,omitempty"`
	Footprint      []Point         `json:"footprint,omitempty"`
	ImageryRef     string          `json:"imagery_ref,omitempty"`
	Address        string          `json:"address,omitempty"`
	PostalCode     string          `json:"postal_code,omitempty"`
	City           string          `json:"city,omitempty"`
	GeocodeScore   float64         `json:"geocode_score,omitempty"`
	Zone           string          `json:"zone,omitempty"`
	DistanceMeters float64         `json:"distance_m"`
	Cadastral      *Cadastral      `json:"cadastral,omitempty"`
	Sales          *SalesContext   `json:"sales,omitempty"`
	// Notes are enrichment gaps carried into the score reasons.
	Notes []string `json:"notes,omitempty"`
}
