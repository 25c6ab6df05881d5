package candidate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
)

// ParcelScanStrategy enumerates the parcels around the locality center.
type ParcelScanStrategy struct {
	Geocoder geocode.Client
	Catalog  Catalog
	Guard    *resilience.Guard
	Settings Settings
}

// Generate implements Generator.
func (s *ParcelScanStrategy) Generate(ctx context.Context, p Params) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("strategy", "parcel-scan"), zap.Bool("expanded", p.Expanded))
	d := p.Descriptor

	results, err := locate(ctx, s.Geocoder, s.Guard, d.LocationQuery(), geocode.Bias{City: d.City, PostalCode: d.PostalCode}, 1)
	if err != nil {
		return nil, eris.Wrap(err, "candidate: geocode scan center")
	}
	if len(results) == 0 {
		log.Info("candidate: no scan center", zap.String("query", d.LocationQuery()))
		return nil, nil
	}
	center := model.Point{Lat: results[0].Latitude, Lng: results[0].Longitude}

	half := s.Settings.HalfWidthMeters
	if p.Expanded {
		half = s.Settings.ExpandedHalfWidthMeters
	}
	bbox := geo.BBoxAround(center, half)

	parcels, err := resilience.Call(ctx, s.Guard, resilience.ServiceCadastre, func(ctx context.Context) ([]cadastre.Parcel, error) {
		return s.Catalog.ParcelsInBBox(ctx, bbox)
	})
	if err != nil {
		return nil, eris.Wrap(err, "candidate: enumerate parcels")
	}

	cands := make([]model.Candidate, 0, len(parcels))
	for _, pc := range parcels {
		if p.Exclude[pc.ID] {
			continue
		}
		c := model.Candidate{
			ID:         pc.ID,
			Source:     model.SourceParcelScan,
			Centroid:   pc.Centroid,
			Polygon:    pc.Ring,
			ImageryRef: pc.ImageryRef,
		}
		if pc.Section != "" || pc.Number != "" {
			c.Cadastral = pc.Cadastral()
		}
		placeAround(&c, center)
		cands = append(cands, c)
	}

	sortByDistance(cands)
	if s.Settings.MaxCandidates > 0 && len(cands) > s.Settings.MaxCandidates {
		cands = cands[:s.Settings.MaxCandidates]
	}

	s.reverseGeocode(ctx, cands)

	log.Debug("candidate: parcel candidates",
		zap.Int("parcels", len(parcels)),
		zap.Int("count", len(cands)),
	)
	return cands, nil
}

// reverseGeocode fills the address of the first ReverseGeocodeLimit
// candidates. Failures leave the address empty.
func (s *ParcelScanStrategy) reverseGeocode(ctx context.Context, cands []model.Candidate) {
	n := s.Settings.ReverseGeocodeLimit
	if n > len(cands) {
		n = len(cands)
	}
	if n <= 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := s.Settings.ReverseConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		c := &cands[i]
		g.Go(func() error {
			rev, err := resilience.Call(gctx, s.Guard, resilience.ServiceGeocode, func(ctx context.Context) (*geocode.ReverseResult, error) {
				return s.Geocoder.ReverseGeocode(ctx, c.Centroid.Lat, c.Centroid.Lng)
			})
			if err != nil {
				zap.L().Debug("candidate: reverse geocode failed", zap.String("candidate", c.ID), zap.Error(err))
				return nil
			}
			if rev != nil && rev.Matched {
				c.Address = rev.Address
				c.PostalCode = rev.PostalCode
				c.City = rev.City
			}
			return nil
		})
	}
	_ = g.Wait()
}
