package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS localization_requests`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`geocode_cache`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS dvf.mutations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO localization_requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "PENDING", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	req, err := s.CreateRequest(context.Background(), model.Input{Text: "x"})
	require.NoError(t, err)
	assert.Len(t, req.ID, 36)
	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRequestStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE localization_requests SET status`).
		WithArgs("DONE", "", pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRequestStatus(context.Background(), "nope", model.RequestStatusDone, "")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, input, status, reason, created_at, updated_at FROM localization_requests WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "input", "status", "reason", "created_at", "updated_at"}).
			AddRow("r1", []byte(`{"text":"Bordeaux","hints":{},"mode":"address"}`), "DONE", "", now, now))

	req, err := s.GetRequest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusDone, req.Status)
	assert.Equal(t, "Bordeaux", req.Input.Text)
	assert.Equal(t, model.ModeAddress, req.Input.Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRequest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM localization_requests WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRequest(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRequests_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE true AND status = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs("FAILED", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "input", "status", "reason", "created_at", "updated_at"}).
			AddRow("r2", []byte(`{"hints":{},"mode":""}`), "FAILED", "NoCandidatesFound", now, now))

	reqs, err := s.ListRequests(context.Background(), model.RequestFilter{Status: model.RequestStatusFailed, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "NoCandidatesFound", reqs[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	parcels := sampleParcels()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM matched_parcels WHERE request_id = \$1`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO matched_parcels .* ST_GeomFromEWKB\(\$8\)`).
		WithArgs("r1", "33063000AB0042", 1, true, 66.5, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO matched_parcels`).
		WithArgs("r1", "addr:44.810000,-0.560000", 2, false, 41.0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveCandidates(context.Background(), "r1", parcels))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCandidates_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM matched_parcels`).
		WithArgs("r1").
		WillReturnError(eris.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveCandidates(context.Background(), "r1", sampleParcels())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear parcels")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	want := sampleParcels()[0]

	polygon, err := geo.EncodeEWKB(closedRing)
	require.NoError(t, err)
	row, err := toParcelRow(want)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT candidate_id, rank, best, total, score, candidate, ST_AsEWKB\(polygon\)`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"candidate_id", "rank", "best", "total", "score", "candidate", "polygon"}).
			AddRow(row.candidateID, row.rank, row.best, row.total, row.score, row.candidate, polygon))

	got, err := s.ListCandidates(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
