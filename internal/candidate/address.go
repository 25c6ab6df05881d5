package candidate

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

// AddressStrategy turns geocoding matches for the locality and for
// addresses quoted in the text into candidates.
type AddressStrategy struct {
	Geocoder geocode.Client
	Guard    *resilience.Guard
	Imagery  imagery.Template
	Settings Settings
}

// Generate implements Generator.
func (s *AddressStrategy) Generate(ctx context.Context, p Params) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("strategy", "address"), zap.Bool("expanded", p.Expanded))
	d := p.Descriptor
	bias := geocode.Bias{City: d.City, PostalCode: d.PostalCode}

	query, limit := d.LocationQuery(), s.Settings.AddressResults
	if p.Expanded {
		limit = s.Settings.ExpandedAddressResults
		query = d.City
		if query == "" {
			query = d.PostalCode
		}
		bias.PostalCode = ""
	}

	results, err := locate(ctx, s.Geocoder, s.Guard, query, bias, limit)
	if err != nil {
		if len(d.Addresses) == 0 {
			return nil, eris.Wrap(err, "candidate: geocode locality")
		}
		log.Warn("candidate: locality geocoding failed", zap.Error(err))
	}
	if len(results) > limit {
		results = results[:limit]
	}

	var center *model.Point
	if len(results) > 0 {
		center = &model.Point{Lat: results[0].Latitude, Lng: results[0].Longitude}
	}

	cands := make([]model.Candidate, 0, len(results)+s.Settings.ExtraAddresses)
	for _, r := range results {
		cands = append(cands, s.fromResult(r))
	}

	extras := d.Addresses
	if len(extras) > s.Settings.ExtraAddresses {
		extras = extras[:s.Settings.ExtraAddresses]
	}
	for _, addr := range extras {
		matches, err := locate(ctx, s.Geocoder, s.Guard, addr, geocode.Bias{City: d.City, PostalCode: d.PostalCode}, 1)
		if err != nil {
			log.Warn("candidate: address geocoding failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		if len(matches) > 0 {
			cands = append(cands, s.fromResult(matches[0]))
		}
	}

	if center == nil && len(cands) > 0 {
		center = &cands[0].Centroid
	}
	if center != nil {
		origin := *center
		for i := range cands {
			placeAround(&cands[i], origin)
		}
	}

	cands = Dedupe(cands, s.Settings.DedupeMeters)
	cands = exclude(cands, p.Exclude)
	if !p.Expanded {
		cands = FilterByNeighborhood(cands, p.Hints.Neighborhood)
	}

	log.Debug("candidate: address candidates", zap.Int("count", len(cands)))
	return cands, nil
}

func (s *AddressStrategy) fromResult(r geocode.Result) model.Candidate {
	pt := model.Point{Lat: r.Latitude, Lng: r.Longitude}
	return model.Candidate{
		ID:           fmt.Sprintf("addr:%.6f,%.6f", r.Latitude, r.Longitude),
		Source:       model.SourceAddress,
		Centroid:     pt,
		ImageryRef:   s.Imagery.Ref(pt),
		Address:      r.Address,
		PostalCode:   r.PostalCode,
		City:         r.City,
		GeocodeScore: r.Score,
	}
}

func exclude(cands []model.Candidate, ids map[string]bool) []model.Candidate {
	if len(ids) == 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if !ids[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
