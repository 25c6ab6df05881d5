// Package score computes the per-criterion sub-scores of a candidate and
// their weighted total.
package score

import (
	"fmt"
	"math"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/vision"
)

// Neutral is the sub-score used when a criterion cannot be evaluated.
const Neutral = 50.0

// Evidence is what was observed for one candidate. Nil comparisons score
// neutral.
type Evidence struct {
	Similarity *vision.Comparison
	Pool       *vision.Comparison
	Roof       *vision.Comparison
	Terrain    *vision.Comparison
	// Landmark is the resolved position of the hinted landmark, if any.
	Landmark *model.Point
	// Failures are reasons for visual comparisons that did not complete.
	Failures []string
}

// Scorer aggregates sub-scores with fixed weights.
type Scorer struct {
	weights Weights
}

// New creates a Scorer. Weights are expected to be validated.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Weights returns the aggregation weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the breakdown for c. It is pure.
func (s *Scorer) Score(c model.Candidate, hints model.UserHints, ev Evidence) model.ScoreBreakdown {
	r := &reasons{}
	b := model.ScoreBreakdown{
		Image:   clamp(imageScore(ev, r)),
		Pool:    clamp(poolScore(hints.Pool, ev.Pool, r)),
		Roof:    clamp(roofScore(ev.Roof, r)),
		Terrain: clamp(terrainScore(c, hints, ev.Terrain, r)),
		Hints:   clamp(hintsScore(c, hints, ev.Landmark, r)),
		Density: clamp(densityScore(c.Sales, r)),
	}
	b.Total = s.Total(b)
	r.add(ev.Failures...)
	r.add(c.Notes...)
	b.Reasons = r.list
	return b
}

// Total is the weighted sum of the sub-scores, rounded to 2 decimals.
func (s *Scorer) Total(b model.ScoreBreakdown) float64 {
	w := s.weights
	t := w.Image*b.Image + w.Pool*b.Pool + w.Roof*b.Roof +
		w.Terrain*b.Terrain + w.Hints*b.Hints + w.Density*b.Density
	return math.Round(t*100) / 100
}

type reasons struct{ list []string }

func (r *reasons) add(s ...string) {
	r.list = append(r.list, s...)
}

func (r *reasons) addf(format string, args ...any) {
	r.list = append(r.list, fmt.Sprintf(format, args...))
}

// observed reports whether both readings name a concrete value. A vague
// "other" on both sides is not a match.
func observed(photo, imagery string) bool {
	return concrete(photo) && concrete(imagery)
}

func concrete(v string) bool {
	return v != "" && v != "other" && v != "unknown"
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func imageScore(ev Evidence, r *reasons) float64 {
	if ev.Similarity == nil {
		return Neutral
	}
	r.addf("image similarity %.0f%%", ev.Similarity.Similarity*100)
	return ev.Similarity.Similarity * 100
}

func poolScore(hint model.PoolState, cmp *vision.Comparison, r *reasons) float64 {
	s := Neutral
	if cmp == nil {
		return s
	}
	photo, aerial := cmp.Photo.Pool, cmp.Imagery.Pool

	switch {
	case hint == model.PoolNone:
		switch {
		case aerial.Present():
			s -= 30
			r.add("pool visible on imagery but none expected")
		case aerial == vision.PoolAbsent:
			s += 15
			r.add("no pool, as expected")
		}
	case hint.Shaped():
		switch {
		case aerial.Present():
			s += 30
			if string(aerial) == string(hint) {
				s += 10
				r.addf("%s pool visible on imagery", hint)
			} else {
				r.add("pool visible on imagery")
			}
		case aerial == vision.PoolAbsent:
			s -= 15
			r.add("expected pool not visible on imagery")
		}
	default:
		switch {
		case photo.Present() && aerial.Present():
			s += 20
			if photo == aerial && photo != vision.PoolOther {
				s += 10
				r.addf("same %s pool on photos and imagery", photo)
			} else {
				r.add("pool on photos and imagery")
			}
		case photo.Present() && aerial == vision.PoolAbsent:
			s -= 15
			r.add("pool on photos but not on imagery")
		case aerial.Present() && photo == vision.PoolAbsent:
			s -= 10
			r.add("pool on imagery but not on photos")
		}
	}
	return s
}

func roofScore(cmp *vision.Comparison, r *reasons) float64 {
	s := Neutral
	if cmp == nil {
		return s
	}
	p, a := cmp.Photo, cmp.Imagery
	if observed(p.RoofColor, a.RoofColor) {
		if p.RoofColor == a.RoofColor {
			s += 20
			r.addf("%s roof matches", p.RoofColor)
		} else {
			s -= 10
			r.addf("roof color differs (%s vs %s)", p.RoofColor, a.RoofColor)
		}
	}
	if observed(p.RoofShape, a.RoofShape) {
		if p.RoofShape == a.RoofShape {
			s += 15
			r.addf("%s roof shape matches", p.RoofShape)
		} else {
			s -= 10
			r.addf("roof shape differs (%s vs %s)", p.RoofShape, a.RoofShape)
		}
	}
	return s
}

func terrainScore(c model.Candidate, hints model.UserHints, cmp *vision.Comparison, r *reasons) float64 {
	s := Neutral
	if cmp != nil {
		p, a := cmp.Photo, cmp.Imagery
		if observed(p.TerrainShape, a.TerrainShape) {
			if p.TerrainShape == a.TerrainShape {
				s += 15
				r.addf("%s plot matches", p.TerrainShape)
			} else {
				s -= 10
				r.add("plot shape differs")
			}
		}
		if p.Terrace != nil && a.Terrace != nil {
			if *p.Terrace == *a.Terrace {
				s += 15
				r.add("terrace matches")
			} else {
				s -= 10
				r.add("terrace differs")
			}
		}
	}

	if rng := hints.TerrainSurfaceRange; rng != nil && !rng.Empty() {
		if len(c.Polygon) < 3 {
			r.add("no parcel polygon to check the land surface")
		} else {
			area := geo.AreaSquareMeters(c.Polygon)
			if rng.Contains(area, 0) {
				s += 15
				r.addf("land surface %.0f m² within range", area)
			} else {
				s -= 10
				r.addf("land surface %.0f m² outside range", area)
			}
		}
	}
	return s
}

func hintsScore(c model.Candidate, hints model.UserHints, landmark *model.Point, r *reasons) float64 {
	s := Neutral + 5*float64(hints.TypologyFields())

	if hints.Neighborhood != "" {
		switch geo.Plausibility(hints.Neighborhood, c.Zone) {
		case 1:
			s += 10
			r.addf("%s zone fits a %s setting", c.Zone, hints.Neighborhood)
		case -1:
			s -= 10
			r.addf("%s zone is unlikely for a %s setting", c.Zone, hints.Neighborhood)
		}
	}

	wantsSales := (hints.PriceRange != nil && !hints.PriceRange.Empty()) ||
		(hints.SurfaceRange != nil && !hints.SurfaceRange.Empty())
	if wantsSales && c.Sales == nil {
		r.add("no local sales to compare price or surface")
	}

	if rng := hints.PriceRange; rng != nil && !rng.Empty() && c.Sales != nil && c.Sales.AvgPrice != nil {
		avg := *c.Sales.AvgPrice
		if rng.Contains(avg, 0.15) {
			s += 15
			r.addf("local average price %.0f € fits the range", avg)
		} else {
			s -= math.Min(20, 20*rng.Deviation(avg))
			r.addf("local average price %.0f € is off the range", avg)
		}
	}

	if rng := hints.SurfaceRange; rng != nil && !rng.Empty() && c.Sales != nil && c.Sales.AvgSurface != nil {
		avg := *c.Sales.AvgSurface
		if rng.Contains(avg, 0.15) {
			s += 10
			r.addf("local average surface %.0f m² fits the range", avg)
		} else {
			s -= math.Min(15, 15*rng.Deviation(avg))
			r.addf("local average surface %.0f m² is off the range", avg)
		}
	}

	if lm := hints.Landmark; lm != nil && landmark != nil && lm.WalkMinutes > 0 {
		d := geo.HaversineMeters(c.Centroid, *landmark)
		walk := geo.WalkingMeters(lm.WalkMinutes)
		switch {
		case d <= walk:
			s += 10
			r.addf("%s within %d min walk", lm.Name, lm.WalkMinutes)
		case d > 2*walk:
			s -= 10
			r.addf("%s too far to walk (%.0f m)", lm.Name, d)
		}
	}
	return s
}

func densityScore(sales *model.SalesContext, r *reasons) float64 {
	if sales == nil {
		return Neutral
	}
	r.addf("%d sales within %.0f m", sales.Count, sales.RadiusMeters)
	return math.Min(100, 30+2*float64(sales.Count))
}
