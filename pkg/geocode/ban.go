package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
)

const defaultBANURL = "https://api-adresse.data.gouv.fr"

// banProvider queries the Base Adresse Nationale (api-adresse.data.gouv.fr).
type banProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// banResponse is the GeoJSON FeatureCollection returned by /search and /reverse.
type banResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Label    string  `json:"label"`
			Score    float64 `json:"score"`
			Postcode string  `json:"postcode"`
			City     string  `json:"city"`
			Type     string  `json:"type"`
		} `json:"properties"`
	} `json:"features"`
}

func (p *banProvider) Name() string { return "ban" }

func (p *banProvider) Available() bool { return p.baseURL != "" }

func (p *banProvider) Geocode(ctx context.Context, query string, bias Bias, limit int) ([]Result, error) {
	q := query
	// /search has no city filter; the city only helps as part of the text.
	if bias.City != "" && !strings.Contains(strings.ToLower(q), strings.ToLower(bias.City)) {
		q = q + " " + bias.City
	}
	params := url.Values{
		"q":     {q},
		"limit": {strconv.Itoa(limit)},
	}
	if bias.PostalCode != "" {
		params.Set("postcode", bias.PostalCode)
	}

	resp, err := p.get(ctx, "/search/", params)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		results = append(results, Result{
			Latitude:   f.Geometry.Coordinates[1],
			Longitude:  f.Geometry.Coordinates[0],
			Address:    f.Properties.Label,
			PostalCode: f.Properties.Postcode,
			City:       f.Properties.City,
			Score:      f.Properties.Score,
			Kind:       f.Properties.Type,
			Source:     "ban",
		})
	}
	return results, nil
}

func (p *banProvider) Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(lng, 'f', 6, 64)},
		"limit": {"1"},
	}
	resp, err := p.get(ctx, "/reverse/", params)
	if err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return &ReverseResult{Source: "ban", Matched: false}, nil
	}
	props := resp.Features[0].Properties
	return &ReverseResult{
		Address:    props.Label,
		PostalCode: props.Postcode,
		City:       props.City,
		Source:     "ban",
		Matched:    true,
	}, nil
}

func (p *banProvider) get(ctx context.Context, path string, params url.Values) (*banResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: ban rate limit")
	}

	reqURL := fmt.Sprintf("%s%s?%s", strings.TrimRight(p.baseURL, "/"), path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: ban build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: ban request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("geocode: ban", resp.StatusCode)
	}

	var out banResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "geocode: ban parse response")
	}
	return &out, nil
}
