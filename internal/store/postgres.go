package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/db"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/dvf"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
)

// PostgresStore implements Store on PostGIS. Parcel polygons are stored
// in a geometry column.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to databaseURL.
func NewPostgres(ctx context.Context, databaseURL string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for the geocode cache and the local
// DVF source.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS localization_requests (
	id         TEXT PRIMARY KEY,
	input      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	reason     TEXT NOT NULL DEFAULT '',
	outcome    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS matched_parcels (
	request_id   TEXT NOT NULL REFERENCES localization_requests(id) ON DELETE CASCADE,
	candidate_id TEXT NOT NULL,
	rank         INTEGER NOT NULL,
	best         BOOLEAN NOT NULL DEFAULT false,
	total        DOUBLE PRECISION NOT NULL,
	score        JSONB NOT NULL,
	candidate    JSONB NOT NULL,
	polygon      geometry(Polygon, 4326),
	PRIMARY KEY (request_id, rank)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matched_parcels_one_best
	ON matched_parcels(request_id) WHERE best;
CREATE INDEX IF NOT EXISTS idx_matched_parcels_polygon ON matched_parcels USING GIST (polygon);
CREATE INDEX IF NOT EXISTS idx_localization_requests_status ON localization_requests(status);
`

// Migrate creates the request tables, the geocode cache and the local DVF table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{postgresMigration, geocode.CacheMigration, dvf.Migration} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, in model.Input) (*model.LocalizationRequest, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO localization_requests (id, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, inputJSON, string(model.RequestStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert request")
	}

	return &model.LocalizationRequest{
		ID:        id,
		Input:     in,
		Status:    model.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE localization_requests SET status = $1, reason = $2, updated_at = $3 WHERE id = $4`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update request status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "request %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.LocalizationRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input, status, reason, created_at, updated_at FROM localization_requests WHERE id = $1`,
		id,
	)
	r, err := scanPGRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "request %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get request %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.LocalizationRequest, error) {
	query := `SELECT id, input, status, reason, created_at, updated_at FROM localization_requests WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
	}
	defer rows.Close()

	var reqs []model.LocalizationRequest
	for rows.Next() {
		r, err := scanPGRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan request")
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, id string, out *model.Outcome) error {
	outJSON, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE localization_requests SET outcome = $1, updated_at = $2 WHERE id = $3`,
		outJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save outcome %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "request %s", id)
	}
	return nil
}

// GetOutcome returns nil without error while the request has no outcome.
func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	var outNull *[]byte
	err := s.pool.QueryRow(ctx,
		`SELECT outcome FROM localization_requests WHERE id = $1`, id,
	).Scan(&outNull)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "request %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcome %s", id)
	}
	if outNull == nil {
		return nil, nil
	}
	var out model.Outcome
	if err := json.Unmarshal(*outNull, &out); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal outcome")
	}
	return &out, nil
}

// SaveCandidates replaces the ranked parcels of a request in one transaction.
func (s *PostgresStore) SaveCandidates(ctx context.Context, id string, parcels []model.MatchedParcel) error {
	if err := validateParcels(parcels); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM matched_parcels WHERE request_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: clear parcels %s", id)
	}
	for _, p := range parcels {
		row, err := toParcelRow(p)
		if err != nil {
			return err
		}
		polygon, err := geo.EncodeEWKB(row.polygon)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO matched_parcels (request_id, candidate_id, rank, best, total, score, candidate, polygon)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8))`,
			id, row.candidateID, row.rank, row.best, row.total, row.score, row.candidate, polygon,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert parcel %s", row.candidateID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit parcels")
}

func (s *PostgresStore) ListCandidates(ctx context.Context, id string) ([]model.MatchedParcel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT candidate_id, rank, best, total, score, candidate, ST_AsEWKB(polygon)
		 FROM matched_parcels WHERE request_id = $1 ORDER BY rank`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parcels")
	}
	defer rows.Close()

	var out []model.MatchedParcel
	for rows.Next() {
		var row parcelRow
		var polygon []byte
		if err := rows.Scan(&row.candidateID, &row.rank, &row.best, &row.total, &row.score, &row.candidate, &polygon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parcel")
		}
		if row.polygon, err = geo.DecodeEWKB(polygon); err != nil {
			return nil, err
		}
		mp, err := row.matched()
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list parcels iterate")
}

func scanPGRequest(row scannable) (*model.LocalizationRequest, error) {
	var r model.LocalizationRequest
	var inputJSON []byte
	var status string

	if err := row.Scan(&r.ID, &inputJSON, &status, &r.Reason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RequestStatus(status)
	if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal input")
	}
	return &r, nil
}
