package model

// PoolState is the pool attribute a user can declare.
type PoolState string

const (
	PoolNone        PoolState = "none"
	PoolRectangular PoolState = "rectangular"
	PoolRound       PoolState = "round"
	PoolUnknown     PoolState = "unknown"
)

// Shaped reports whether the state declares a pool with a known shape.
func (p PoolState) Shaped() bool {
	return p == PoolRectangular || p == PoolRound
}

// Declared reports whether the user said anything definite about the pool.
func (p PoolState) Declared() bool {
	return p == PoolNone || p.Shaped()
}

// Neighborhood is the qualitative surroundings of a property.
type Neighborhood string

const (
	NeighborhoodUrban       Neighborhood = "urban"
	NeighborhoodResidential Neighborhood = "residential"
	NeighborhoodCountryside Neighborhood = "countryside"
	NeighborhoodIsolated    Neighborhood = "isolated"
)

// Range is an inclusive numeric interval. A zero bound is open.
type Range struct {
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Contains reports whether v lies in the range widened by tolerance
// (0.15 widens both bounds by 15%).
func (r Range) Contains(v, tolerance float64) bool {
	if r.Min > 0 && v < r.Min*(1-tolerance) {
		return false
	}
	if r.Max > 0 && v > r.Max*(1+tolerance) {
		return false
	}
	return true
}

// Deviation is the relative distance from v to the nearest bound, 0 inside.
func (r Range) Deviation(v float64) float64 {
	switch {
	case r.Min > 0 && v < r.Min:
		return (r.Min - v) / r.Min
	case r.Max > 0 && v > r.Max:
		return (v - r.Max) / r.Max
	default:
		return 0
	}
}

// Empty reports whether neither bound is set.
func (r Range) Empty() bool {
	return r.Min <= 0 && r.Max <= 0
}

// Landmark is a named place the property should be walkable from.
type Landmark struct {
	Name        string `json:"name"`
	WalkMinutes int    `json:"walkMinutes"`
}

// UserHints are structured constraints authored by the user. They are not
// modified after the request is created.
type UserHints struct {
	PropertyType        string       `json:"propertyType,omitempty"`
	ConstructionPeriod  string       `json:"constructionPeriod,omitempty"`
	PriceRange          *Range       `json:"priceRange,omitempty"`
	SurfaceRange        *Range       `json:"surfaceRange,omitempty"`
	TerrainSurfaceRange *Range       `json:"terrainSurfaceRange,omitempty"`
	Pool                PoolState    `json:"pool,omitempty"`
	Neighborhood        Neighborhood `json:"neighborhood,omitempty"`
	Mitoyennete         *bool        `json:"mitoyennete,omitempty"`
	Landmark            *Landmark    `json:"landmark,omitempty"`
	City                string       `json:"city,omitempty"`
	PostalCode          string       `json:"postalCode,omitempty"`
}

// TypologyFields counts the known typology hints (type, mitoyenneté, period).
func (h UserHints) TypologyFields() int {
	n := 0
	if h.PropertyType != "" {
		n++
	}
	if h.Mitoyennete != nil {
		n++
	}
	if h.ConstructionPeriod != "" {
		n++
	}
	return n
}
