package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Polygons are
// stored as GeoJSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS localization_requests (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	reason     TEXT NOT NULL DEFAULT '',
	outcome    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matched_parcels (
	request_id   TEXT NOT NULL REFERENCES localization_requests(id),
	candidate_id TEXT NOT NULL,
	rank         INTEGER NOT NULL,
	best         INTEGER NOT NULL DEFAULT 0,
	total        REAL NOT NULL,
	score        TEXT NOT NULL,
	candidate    TEXT NOT NULL,
	polygon      TEXT,
	PRIMARY KEY (request_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_localization_requests_status ON localization_requests(status);
CREATE INDEX IF NOT EXISTS idx_localization_requests_created_at ON localization_requests(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRequest(ctx context.Context, in model.Input) (*model.LocalizationRequest, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO localization_requests (id, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(inputJSON), string(model.RequestStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert request")
	}

	return &model.LocalizationRequest{
		ID:        id,
		Input:     in,
		Status:    model.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE localization_requests SET status = ?, reason = ?, updated_at = ? WHERE id = ?`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update request status %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*model.LocalizationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, status, reason, created_at, updated_at FROM localization_requests WHERE id = ?`,
		id,
	)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "request %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.LocalizationRequest, error) {
	query := `SELECT id, input, status, reason, created_at, updated_at FROM localization_requests WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close() //nolint:errcheck

	var reqs []model.LocalizationRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, id string, out *model.Outcome) error {
	outJSON, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcome")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE localization_requests SET outcome = ?, updated_at = ? WHERE id = ?`,
		string(outJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save outcome %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

// GetOutcome returns nil without error while the request has no outcome.
func (s *SQLiteStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	var outJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome FROM localization_requests WHERE id = ?`, id,
	).Scan(&outJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "request %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get outcome %s", id)
	}
	if !outJSON.Valid {
		return nil, nil
	}
	var out model.Outcome
	if err := json.Unmarshal([]byte(outJSON.String), &out); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
	}
	return &out, nil
}

// SaveCandidates replaces the ranked parcels of a request.
func (s *SQLiteStore) SaveCandidates(ctx context.Context, id string, parcels []model.MatchedParcel) error {
	if err := validateParcels(parcels); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM matched_parcels WHERE request_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: clear parcels %s", id)
	}
	for _, p := range parcels {
		row, err := toParcelRow(p)
		if err != nil {
			return err
		}
		polygon, err := encodeGeoJSON(row.polygon)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO matched_parcels (request_id, candidate_id, rank, best, total, score, candidate, polygon)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, row.candidateID, row.rank, row.best, row.total, string(row.score), string(row.candidate), polygon,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert parcel %s", row.candidateID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit parcels")
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, id string) ([]model.MatchedParcel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id, rank, best, total, score, candidate, polygon
		 FROM matched_parcels WHERE request_id = ? ORDER BY rank`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parcels")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MatchedParcel
	for rows.Next() {
		var row parcelRow
		var scoreJSON, candJSON string
		var polygon sql.NullString
		if err := rows.Scan(&row.candidateID, &row.rank, &row.best, &row.total, &scoreJSON, &candJSON, &polygon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parcel")
		}
		row.score = []byte(scoreJSON)
		row.candidate = []byte(candJSON)
		if polygon.Valid {
			if row.polygon, err = geo.DecodeGeoJSON([]byte(polygon.String)); err != nil {
				return nil, err
			}
		}
		mp, err := row.matched()
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parcels iterate")
}

func scanRequest(row scannable) (*model.LocalizationRequest, error) {
	var r model.LocalizationRequest
	var inputJSON string

	err := row.Scan(&r.ID, &inputJSON, &r.Status, &r.Reason, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan request")
	}
	if err := json.Unmarshal([]byte(inputJSON), &r.Input); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal input")
	}
	return &r, nil
}
