// Package store persists localization requests, their outcomes and the
// ranked parcels they produced.
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// ErrNotFound is wrapped by lookups and updates that match no request.
var ErrNotFound = eris.New("not found")

// Store defines the persistence interface for the localization pipeline.
type Store interface {
	// Requests
	CreateRequest(ctx context.Context, in model.Input) (*model.LocalizationRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, reason string) error
	GetRequest(ctx context.Context, id string) (*model.LocalizationRequest, error)
	ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.LocalizationRequest, error)

	// Results
	SaveOutcome(ctx context.Context, id string, out *model.Outcome) error
	GetOutcome(ctx context.Context, id string) (*model.Outcome, error)
	SaveCandidates(ctx context.Context, id string, parcels []model.MatchedParcel) error
	ListCandidates(ctx context.Context, id string) ([]model.MatchedParcel, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// parcelRow is the column form of a MatchedParcel. The polygon is kept out
// of the candidate JSON so it can live in a geometry column.
type parcelRow struct {
	candidateID string
	rank        int
	best        bool
	total       float64
	score       []byte
	candidate   []byte
	polygon     []model.Point
}

func toParcelRow(mp model.MatchedParcel) (parcelRow, error) {
	c := mp.Candidate
	polygon := c.Polygon
	c.Polygon = nil

	candJSON, err := json.Marshal(c)
	if err != nil {
		return parcelRow{}, eris.Wrap(err, "store: marshal candidate")
	}
	scoreJSON, err := json.Marshal(mp.Score)
	if err != nil {
		return parcelRow{}, eris.Wrap(err, "store: marshal score")
	}
	return parcelRow{
		candidateID: c.ID,
		rank:        mp.Rank,
		best:        mp.Best,
		total:       mp.Score.Total,
		score:       scoreJSON,
		candidate:   candJSON,
		polygon:     polygon,
	}, nil
}

func (r parcelRow) matched() (model.MatchedParcel, error) {
	mp := model.MatchedParcel{Rank: r.rank, Best: r.best}
	if err := json.Unmarshal(r.candidate, &mp.Candidate); err != nil {
		return mp, eris.Wrap(err, "store: unmarshal candidate")
	}
	if err := json.Unmarshal(r.score, &mp.Score); err != nil {
		return mp, eris.Wrap(err, "store: unmarshal score")
	}
	mp.Candidate.Polygon = r.polygon
	return mp, nil
}

// validateParcels enforces at most one best parcel per request.
func validateParcels(parcels []model.MatchedParcel) error {
	best := 0
	for _, p := range parcels {
		if p.Best {
			best++
		}
	}
	if best > 1 {
		return eris.Errorf("store: %d parcels flagged best", best)
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func encodeGeoJSON(ring []model.Point) (any, error) {
	data, err := geo.EncodeGeoJSON(ring)
	if err != nil || data == nil {
		return nil, err
	}
	return string(data), nil
}
