// Package candidate produces the spatial candidates a localization request
// is scored against, by geocoding addresses or by scanning cadastral parcels.
package candidate

import (
	"context"
	"sort"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
)

// Params is one generation request.
type Params struct {
	Descriptor model.Descriptor
	Hints      model.UserHints
	// Expanded widens the search for the single fallback retry.
	Expanded bool
	// Exclude holds candidate IDs already evaluated by an earlier pass.
	Exclude map[string]bool
}

// Generator produces candidates. Zero candidates is a normal result.
type Generator interface {
	Generate(ctx context.Context, p Params) ([]model.Candidate, error)
}

// Catalog enumerates parcels in a bounding box.
type Catalog interface {
	ParcelsInBBox(ctx context.Context, bbox model.BBox) ([]cadastre.Parcel, error)
}

// Settings bound the search.
type Settings struct {
	AddressResults          int
	ExpandedAddressResults  int
	ExtraAddresses          int
	DedupeMeters            float64
	HalfWidthMeters         float64
	ExpandedHalfWidthMeters float64
	MaxCandidates           int
	ReverseGeocodeLimit     int
	ReverseConcurrency      int
}

// DefaultSettings returns the production search bounds.
func DefaultSettings() Settings {
	return Settings{
		AddressResults:          5,
		ExpandedAddressResults:  10,
		ExtraAddresses:          3,
		DedupeMeters:            25,
		HalfWidthMeters:         2000,
		ExpandedHalfWidthMeters: 4000,
		MaxCandidates:           50,
		ReverseGeocodeLimit:     20,
		ReverseConcurrency:      5,
	}
}

// locate geocodes the descriptor's locality, returning nil when it has none
// or nothing matched.
func locate(ctx context.Context, gc geocode.Client, guard *resilience.Guard, query string, bias geocode.Bias, limit int) ([]geocode.Result, error) {
	if query == "" {
		return nil, nil
	}
	return resilience.Call(ctx, guard, resilience.ServiceGeocode, func(ctx context.Context) ([]geocode.Result, error) {
		return gc.Geocode(ctx, query, bias, limit)
	})
}

// placeAround sets distance and zone relative to center.
func placeAround(c *model.Candidate, center model.Point) {
	c.DistanceMeters = geo.HaversineMeters(center, c.Centroid)
	c.Zone = geo.Classify(c.DistanceMeters / 1000)
}

// FilterByNeighborhood drops candidates whose zone is unlikely for the
// neighborhood hint. It never returns an empty set from a non-empty one.
func FilterByNeighborhood(cands []model.Candidate, n model.Neighborhood) []model.Candidate {
	if n == "" || len(cands) == 0 {
		return cands
	}
	kept := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if geo.Plausibility(n, c.Zone) >= 0 {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return cands
	}
	return kept
}

// Dedupe keeps the first of any candidates closer than meters to an
// already kept one.
func Dedupe(cands []model.Candidate, meters float64) []model.Candidate {
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		dup := false
		for _, k := range out {
			if k.ID == c.ID || geo.HaversineMeters(k.Centroid, c.Centroid) < meters {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// sortByDistance orders nearest first, ties by ID.
func sortByDistance(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].DistanceMeters != cands[j].DistanceMeters {
			return cands[i].DistanceMeters < cands[j].DistanceMeters
		}
		return cands[i].ID < cands[j].ID
	})
}
