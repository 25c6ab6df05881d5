package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
)

func TestGoogleGeocode_Rooftop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "country:FR|postal_code:33000", r.URL.Query().Get("components"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 44.8412, "lng": -0.5731},
					"location_type": "ROOFTOP"
				},
				"formatted_address": "12 Rue Sainte-Catherine, 33000 Bordeaux, France",
				"address_components": [
					{"long_name": "33000", "types": ["postal_code"]},
					{"long_name": "Bordeaux", "types": ["locality", "political"]}
				]
			}]
		}`)
	}))
	defer srv.Close()

	p := &googleProvider{
		key:        "test-key",
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		limiter:    newTestLimiter(),
	}

	results, err := p.Geocode(context.Background(), "12 rue Sainte-Catherine", Bias{PostalCode: "33000"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 44.8412, results[0].Latitude, 1e-4)
	assert.Equal(t, "google", results[0].Source)
	assert.Equal(t, "housenumber", results[0].Kind)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "Bordeaux", results[0].City)
	assert.Equal(t, "33000", results[0].PostalCode)
}

func TestGoogleGeocode_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	p := &googleProvider{key: "k", httpClient: newRewriteClient(srv.URL, googleGeocodeURL), limiter: newTestLimiter()}
	results, err := p.Geocode(context.Background(), "nowhere", Bias{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGoogleGeocode_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT", "results": []}`)
	}))
	defer srv.Close()

	p := &googleProvider{key: "k", httpClient: newRewriteClient(srv.URL, googleGeocodeURL), limiter: newTestLimiter()}
	_, err := p.Geocode(context.Background(), "Bordeaux", Bias{}, 5)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGoogleReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "44.841200,-0.573100", r.URL.Query().Get("latlng"))
		_, _ = io.WriteString(w, `{"status": "OK", "results": [{"formatted_address": "Bordeaux", "address_components": [{"long_name": "Bordeaux", "types": ["locality"]}]}]}`)
	}))
	defer srv.Close()

	p := &googleProvider{key: "k", httpClient: newRewriteClient(srv.URL, googleGeocodeURL), limiter: newTestLimiter()}
	r, err := p.Reverse(context.Background(), 44.8412, -0.5731)
	require.NoError(t, err)
	assert.True(t, r.Matched)
	assert.Equal(t, "Bordeaux", r.City)
}

func TestGoogleProvider_RequiresKey(t *testing.T) {
	p := &googleProvider{limiter: newTestLimiter()}
	assert.False(t, p.Available())
	_, err := p.Geocode(context.Background(), "x", Bias{}, 1)
	assert.Error(t, err)
}

func TestGoogleLocationTypeMappings(t *testing.T) {
	assert.InDelta(t, 0.75, googleLocationTypeToScore("range_interpolated"), 1e-9)
	assert.InDelta(t, 0.4, googleLocationTypeToScore("APPROXIMATE"), 1e-9)
	assert.Equal(t, "street", googleLocationTypeToKind("GEOMETRIC_CENTER"))
	assert.Equal(t, "municipality", googleLocationTypeToKind(""))
}
