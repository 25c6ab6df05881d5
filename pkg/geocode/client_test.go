package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocode_FallsBackWhenPrimaryEmpty(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true}
	google := &stubProvider{name: "google", available: true, results: []Result{
		{Latitude: 1, Source: "google"}, {Latitude: 2, Source: "google"}, {Latitude: 3, Source: "google"},
	}}
	c := NewClient(WithProviders(ban, google))

	results, err := c.Geocode(context.Background(), "Bordeaux", Bias{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "google", results[0].Source)
	assert.Equal(t, 1, ban.calls)
}

func TestGeocode_SkipsUnavailable(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true, results: []Result{{Source: "ban"}}}
	google := &stubProvider{name: "google", available: false}
	c := NewClient(WithProviders(google, ban))

	results, err := c.Geocode(context.Background(), "Bordeaux", Bias{}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, google.calls)
}

func TestGeocode_AllProvidersFail(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true, err: errors.New("down")}
	c := NewClient(WithProviders(ban))

	_, err := c.Geocode(context.Background(), "Bordeaux", Bias{}, 5)
	assert.Error(t, err)
}

func TestGeocode_EmptyAnswerIsNotAnError(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true}
	google := &stubProvider{name: "google", available: true, err: errors.New("quota")}
	c := NewClient(WithProviders(ban, google))

	results, err := c.Geocode(context.Background(), "Nowhere", Bias{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGeocode_EmptyQuery(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true}
	c := NewClient(WithProviders(ban))
	results, err := c.Geocode(context.Background(), "", Bias{}, 5)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, ban.calls)
}

func TestReverseGeocode_FirstMatchWins(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true, reverse: &ReverseResult{Matched: false}}
	google := &stubProvider{name: "google", available: true, reverse: &ReverseResult{Matched: true, City: "Pessac"}}
	c := NewClient(WithProviders(ban, google))

	r, err := c.ReverseGeocode(context.Background(), 44.8, -0.6)
	require.NoError(t, err)
	assert.Equal(t, "Pessac", r.City)
}

func TestReverseGeocode_NoMatch(t *testing.T) {
	ban := &stubProvider{name: "ban", available: true, reverse: &ReverseResult{}}
	c := NewClient(WithProviders(ban))

	r, err := c.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, r.Matched)
}

func TestCacheKey(t *testing.T) {
	k1 := cacheKey("33000  Bordeaux", Bias{City: "Bordeaux"}, 5)
	k2 := cacheKey("33000 bordeaux", Bias{City: "BORDEAUX "}, 5)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
	assert.NotEqual(t, k1, cacheKey("33000 bordeaux", Bias{City: "Bordeaux"}, 10))
}

func TestGeocode_CacheHitSkipsProviders(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cached, _ := json.Marshal([]Result{{Latitude: 44.8, Longitude: -0.5, Source: "ban"}})
	mock.ExpectQuery(`SELECT results FROM public.geocode_cache`).
		WithArgs(cacheKey("Bordeaux", Bias{}, 5)).
		WillReturnRows(pgxmock.NewRows([]string{"results"}).AddRow(cached))

	ban := &stubProvider{name: "ban", available: true}
	c := NewClient(WithProviders(ban), WithCache(mock, 30))

	results, err := c.Geocode(context.Background(), "Bordeaux", Bias{}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 44.8, results[0].Latitude, 1e-9)
	assert.Zero(t, ban.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGeocode_CacheMissStoresResults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	key := cacheKey("Bordeaux", Bias{}, 5)
	mock.ExpectQuery(`SELECT results FROM public.geocode_cache`).
		WithArgs(key).
		WillReturnError(errors.New("no rows in result set"))
	mock.ExpectExec(`INSERT INTO public.geocode_cache`).
		WithArgs(key, "Bordeaux", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ban := &stubProvider{name: "ban", available: true, results: []Result{{Source: "ban"}}}
	c := NewClient(WithProviders(ban), WithCache(mock, 0))

	results, err := c.Geocode(context.Background(), "Bordeaux", Bias{}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, ban.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
