package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CacheMigration creates the forward geocoding cache table.
const CacheMigration = `
CREATE TABLE IF NOT EXISTS public.geocode_cache (
	query_hash TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	results    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// cacheKey returns SHA-256 hex of the normalized query, bias, and limit.
func cacheKey(query string, bias Bias, limit int) string {
	normalized := fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.Join(strings.Fields(query), " ")),
		strings.ToLower(strings.TrimSpace(bias.City)),
		strings.TrimSpace(bias.PostalCode),
		limit,
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up cached results, respecting the TTL when configured.
func (g *geocoder) checkCache(ctx context.Context, key string) ([]Result, error) {
	query := "SELECT results FROM public.geocode_cache WHERE query_hash = $1"
	if g.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", g.cacheTTLDays)
	}

	var raw []byte
	if err := g.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		return nil, err // no row or scan error; caller falls through to providers
	}

	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: decode cached results")
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Int("results", len(results)))
	return results, nil
}

// storeCache upserts the results for key, keeping the raw query for inspection.
func (g *geocoder) storeCache(ctx context.Context, key, query string, results []Result) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "geocode: encode cache")
	}
	_, err = g.pool.Exec(ctx, `
		INSERT INTO public.geocode_cache (query_hash, query, results, cached_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (query_hash) DO UPDATE SET
			results = EXCLUDED.results,
			cached_at = now()`,
		key, query, raw,
	)
	if err != nil {
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}
