// Package geocode provides forward and reverse geocoding for French addresses
// via the Base Adresse Nationale (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/db"
)

// Client geocodes free-text queries and reverse-geocodes coordinates.
type Client interface {
	// Geocode returns up to limit ranked matches for query. No match is an
	// empty slice, not an error.
	Geocode(ctx context.Context, query string, bias Bias, limit int) ([]Result, error)

	// ReverseGeocode returns the address nearest to lat/lng. Matched is
	// false when no address is known there.
	ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error)
}

// Bias narrows a forward lookup.
type Bias struct {
	City       string
	PostalCode string
}

// Result is one forward geocoding match.
type Result struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lng"`
	Address    string  `json:"address"`
	PostalCode string  `json:"postal_code,omitempty"`
	City       string  `json:"city,omitempty"`
	Score      float64 `json:"score"`
	Kind       string  `json:"kind,omitempty"` // "housenumber", "street", "locality", "municipality"
	Source     string  `json:"source"`
}

// ReverseResult is the address found at a coordinate.
type ReverseResult struct {
	Address    string `json:"address"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Source     string `json:"source"`
	Matched    bool   `json:"matched"`
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Available() bool
	Geocode(ctx context.Context, query string, bias Bias, limit int) ([]Result, error)
	Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBANURL overrides the Base Adresse Nationale endpoint.
func WithBANURL(u string) Option {
	return func(g *geocoder) {
		g.banURL = u
	}
}

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets the HTTP client used by every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by the providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache stores forward results in public.geocode_cache. ttlDays <= 0
// keeps entries forever.
func WithCache(pool db.Pool, ttlDays int) Option {
	return func(g *geocoder) {
		g.pool = pool
		g.cacheTTLDays = ttlDays
	}
}

// WithProviders replaces the provider chain.
func WithProviders(p ...Provider) Option {
	return func(g *geocoder) {
		g.providers = p
	}
}

type geocoder struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	banURL       string
	googleKey    string
	pool         db.Pool
	cacheTTLDays int
	providers    []Provider
}

// NewClient creates a geocoding Client. Providers are tried in order: BAN,
// then Google when a key is configured.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(40, 40), // BAN allows 50 req/s per IP
		banURL:     defaultBANURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.providers == nil {
		g.providers = []Provider{
			&banProvider{baseURL: g.banURL, httpClient: g.httpClient, limiter: g.limiter},
			&googleProvider{key: g.googleKey, httpClient: g.httpClient, limiter: g.limiter},
		}
	}
	return g
}

// Geocode tries each provider in order and returns the first non-empty match list.
func (g *geocoder) Geocode(ctx context.Context, query string, bias Bias, limit int) ([]Result, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	key := cacheKey(query, bias, limit)
	if g.pool != nil {
		if cached, err := g.checkCache(ctx, key); err == nil {
			return cached, nil
		}
	}

	var lastErr error
	answered := false
	for _, p := range g.providers {
		if !p.Available() {
			continue
		}
		results, err := p.Geocode(ctx, query, bias, limit)
		if err != nil {
			zap.L().Debug("geocode: provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		answered = true
		if len(results) == 0 {
			continue
		}
		if len(results) > limit {
			results = results[:limit]
		}
		if g.pool != nil {
			if err := g.storeCache(ctx, key, query, results); err != nil {
				zap.L().Warn("geocode: cache store failed", zap.Error(err))
			}
		}
		return results, nil
	}

	// Every provider erroring is a failure; an empty answer is not.
	if !answered && lastErr != nil {
		return nil, eris.Wrap(lastErr, "geocode: all providers failed")
	}
	return nil, nil
}

// ReverseGeocode tries each provider in order and returns the first match.
func (g *geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	var lastErr error
	answered := false
	for _, p := range g.providers {
		if !p.Available() {
			continue
		}
		r, err := p.Reverse(ctx, lat, lng)
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		if r != nil && r.Matched {
			return r, nil
		}
	}
	if !answered && lastErr != nil {
		return nil, eris.Wrap(lastErr, "geocode: reverse failed")
	}
	return &ReverseResult{Matched: false}, nil
}
