package dvf

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/db"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Migration creates the local DVF table read by PostGISSource.
const Migration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS dvf;
CREATE TABLE IF NOT EXISTS dvf.mutations (
	id                  BIGSERIAL PRIMARY KEY,
	date_mutation       DATE,
	nature_mutation     TEXT,
	valeur_fonciere     DOUBLE PRECISION,
	type_local          TEXT,
	surface_reelle_bati DOUBLE PRECISION,
	surface_terrain     DOUBLE PRECISION,
	geom                geometry(Point, 4326) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dvf_mutations_geom ON dvf.mutations USING GIST (geom);
`

const densitySQL = `
SELECT COUNT(*),
       COALESCE(AVG(NULLIF(valeur_fonciere, 0)), 0),
       COALESCE(AVG(NULLIF(surface_reelle_bati, 0)), 0)
FROM dvf.mutations
WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)`

// PostGISSource aggregates a locally loaded dvf.mutations table.
type PostGISSource struct {
	pool db.Pool
}

// NewPostGISSource creates a source over pool.
func NewPostGISSource(pool db.Pool) *PostGISSource {
	return &PostGISSource{pool: pool}
}

// SalesDensity returns the transactions summary within radiusMeters of
// lat/lng, or nil when none are recorded.
func (s *PostGISSource) SalesDensity(ctx context.Context, lat, lng, radiusMeters float64) (*model.SalesContext, error) {
	var count int64
	var avgPrice, avgSurface float64
	err := s.pool.QueryRow(ctx, densitySQL, lng, lat, radiusMeters).Scan(&count, &avgPrice, &avgSurface)
	if err != nil {
		return nil, eris.Wrap(err, "dvf: query density")
	}
	if count == 0 {
		return nil, nil
	}
	sc := &model.SalesContext{
		Count:         int(count),
		DensityPerKm2: Density(int(count), radiusMeters),
		RadiusMeters:  radiusMeters,
	}
	if avgPrice > 0 {
		sc.AvgPrice = &avgPrice
	}
	if avgSurface > 0 {
		sc.AvgSurface = &avgSurface
	}
	return sc, nil
}
