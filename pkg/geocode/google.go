package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleProvider is the Google Geocoding API, restricted to France.
type googleProvider struct {
	key        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
}

func (r googleResult) component(kind string) string {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == kind {
				return c.LongName
			}
		}
	}
	return ""
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) Available() bool { return p.key != "" }

func (p *googleProvider) Geocode(ctx context.Context, query string, bias Bias, limit int) ([]Result, error) {
	components := []string{"country:FR"}
	if bias.PostalCode != "" {
		components = append(components, "postal_code:"+bias.PostalCode)
	}
	if bias.City != "" {
		components = append(components, "locality:"+bias.City)
	}
	params := url.Values{
		"address":    {query},
		"components": {strings.Join(components, "|")},
		"region":     {"fr"},
		"key":        {p.key},
	}

	resp, err := p.get(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(results) == limit {
			break
		}
		results = append(results, Result{
			Latitude:   r.Geometry.Location.Lat,
			Longitude:  r.Geometry.Location.Lng,
			Address:    r.FormattedAddress,
			PostalCode: r.component("postal_code"),
			City:       r.component("locality"),
			Score:      googleLocationTypeToScore(r.Geometry.LocationType),
			Kind:       googleLocationTypeToKind(r.Geometry.LocationType),
			Source:     "google",
		})
	}
	return results, nil
}

func (p *googleProvider) Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	params := url.Values{
		"latlng": {fmt.Sprintf("%.6f,%.6f", lat, lng)},
		"key":    {p.key},
	}
	resp, err := p.get(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return &ReverseResult{Source: "google", Matched: false}, nil
	}
	r := resp.Results[0]
	return &ReverseResult{
		Address:    r.FormattedAddress,
		PostalCode: r.component("postal_code"),
		City:       r.component("locality"),
		Source:     "google",
		Matched:    true,
	}, nil
}

func (p *googleProvider) get(ctx context.Context, params url.Values) (*googleGeocodeResponse, error) {
	if p.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("geocode: google", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var out googleGeocodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}
	switch out.Status {
	case "OK", "ZERO_RESULTS":
		return &out, nil
	case "OVER_QUERY_LIMIT":
		return nil, resilience.NewTransientError(eris.New("geocode: google over query limit"), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("geocode: google status %s", out.Status)
	}
}

// googleLocationTypeToScore maps Google's precision to a BAN-like 0..1 score.
func googleLocationTypeToScore(locType string) float64 {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return 0.9
	case "RANGE_INTERPOLATED":
		return 0.75
	case "GEOMETRIC_CENTER":
		return 0.6
	default:
		return 0.4
	}
}

func googleLocationTypeToKind(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		return "housenumber"
	case "GEOMETRIC_CENTER":
		return "street"
	default:
		return "municipality"
	}
}
