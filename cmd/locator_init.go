package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/candidate"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/config"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/db"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/enrich"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/extract"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/locate"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/score"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/store"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/vision"
	anthropicpkg "github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/anthropic"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/dvf"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

// locatorEnv holds the store, the resilience guard and the orchestrator
// needed by the locate and serve commands.
type locatorEnv struct {
	Store        store.Store
	Guard        *resilience.Guard
	Orchestrator *locate.Orchestrator
}

// Close releases resources held by the environment.
func (e *locatorEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initLocator sets up the store and every capability client, then builds
// the Orchestrator. Callers should defer env.Close().
func initLocator(ctx context.Context) (*locatorEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env, err := buildLocator(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildLocator wires capabilities around an open store.
func buildLocator(c *config.Config, st store.Store) (*locatorEnv, error) {
	var pool db.Pool
	if ps, ok := st.(*store.PostgresStore); ok {
		pool = ps.Pool()
	}

	guard := resilience.NewGuard(retryConfig(c.Resilience), breakerConfig(c.Resilience))
	tpl := imagery.Template{URL: c.Imagery.URLTemplate, SpanMeters: c.Imagery.SpanMeters}
	geocoder := initGeocoder(c.Geocode, pool)

	catalog, resolver, err := initCadastre(c, tpl)
	if err != nil {
		return nil, err
	}
	sales, err := initSales(c.Sales, pool)
	if err != nil {
		return nil, err
	}
	weights, err := initWeights(c.Pipeline.WeightsPath)
	if err != nil {
		return nil, err
	}

	pricing := anthropicpkg.Pricing{InputPerMTok: c.Pricing.InputPerMTok, OutputPerMTok: c.Pricing.OutputPerMTok}
	extractOpts := []extract.Option{extract.WithGuard(guard), extract.WithPricing(pricing)}
	var comparer vision.Comparer
	if c.Anthropic.Key != "" {
		ai := anthropicpkg.NewClient(c.Anthropic.Key)
		comparer = vision.New(ai,
			vision.WithModel(c.Anthropic.VisionModel),
			vision.WithMaxTokens(c.Anthropic.MaxTokens),
			vision.WithPricing(pricing),
		)
		extractOpts = append(extractOpts, extract.WithLanguageModel(ai, c.Anthropic.ExtractModel))
	} else {
		zap.L().Warn("LOCATOR_ANTHROPIC_KEY not set, visual comparison and model extraction disabled")
	}

	settings := searchSettings(c.Pipeline)
	generators := map[model.Mode]candidate.Generator{
		model.ModeAddress: &candidate.AddressStrategy{
			Geocoder: geocoder, Guard: guard, Imagery: tpl, Settings: settings,
		},
		model.ModeParcelScan: &candidate.ParcelScanStrategy{
			Geocoder: geocoder, Catalog: catalog, Guard: guard, Settings: settings,
		},
	}

	orch := locate.New(locate.Deps{
		Extractor:  extract.New(extractOpts...),
		Generators: generators,
		Enricher: &enrich.Enricher{
			Resolver:     resolver,
			Sales:        sales,
			Guard:        guard,
			RadiusMeters: c.Sales.RadiusMeters,
		},
		Comparer: comparer,
		Geocoder: geocoder,
		Scorer:   score.New(weights),
		Store:    st,
		Guard:    guard,
	}, locate.Settings{
		BatchSize:              c.Pipeline.BatchSize,
		PersistTop:             c.Pipeline.PersistTop,
		SuccessThreshold:       c.Pipeline.SuccessThreshold,
		LowConfidenceThreshold: c.Pipeline.LowConfidenceThreshold,
		RetryThreshold:         c.Pipeline.RetryThreshold,
		Deadline:               c.Pipeline.Deadline(),
	})

	return &locatorEnv{Store: st, Guard: guard, Orchestrator: orch}, nil
}

func retryConfig(rc config.ResilienceConfig) resilience.RetryConfig {
	r := resilience.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		r.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		r.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		r.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	return r
}

func breakerConfig(rc config.ResilienceConfig) resilience.BreakerConfig {
	b := resilience.DefaultBreakerConfig()
	if rc.FailureThreshold > 0 {
		b.FailureThreshold = rc.FailureThreshold
	}
	if rc.ResetTimeoutSecs > 0 {
		b.ResetTimeout = time.Duration(rc.ResetTimeoutSecs) * time.Second
	}
	return b
}

func initGeocoder(gc config.GeocodeConfig, pool db.Pool) geocode.Client {
	var opts []geocode.Option
	if gc.BANURL != "" {
		opts = append(opts, geocode.WithBANURL(gc.BANURL))
	}
	if gc.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(gc.GoogleKey))
	}
	if gc.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(gc.RateLimit))
	}
	if gc.CacheEnabled {
		if pool == nil {
			zap.L().Warn("geocode cache needs the postgres store, cache disabled")
		} else {
			opts = append(opts, geocode.WithCache(pool, gc.CacheTTLDays))
		}
	}
	return geocode.NewClient(opts...)
}

// initCadastre returns the parcel catalog for parcel-scan and the resolver
// used by enrichment. The shapefile serves both; otherwise apicarto resolves.
func initCadastre(c *config.Config, tpl imagery.Template) (candidate.Catalog, enrich.Resolver, error) {
	opts := []cadastre.Option{cadastre.WithImagery(tpl)}
	if c.Cadastre.BaseURL != "" {
		opts = append(opts, cadastre.WithBaseURL(c.Cadastre.BaseURL))
	}
	if c.Cadastre.RateLimit > 0 {
		opts = append(opts, cadastre.WithRateLimit(c.Cadastre.RateLimit))
	}
	api := cadastre.NewClient(opts...)

	switch c.Cadastre.Catalog {
	case "grid":
		return &cadastre.GridCatalog{
			CellSizeMeters: c.Pipeline.CellSizeMeters,
			// the expanded retry needs cells beyond the first pass
			MaxCells: 2 * c.Pipeline.MaxCandidates,
			Imagery:  tpl,
		}, api, nil
	case "apicarto":
		return api, api, nil
	case "shapefile":
		local, err := cadastre.LoadShapefile(c.Cadastre.ShapefilePath, tpl)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	default:
		return nil, nil, eris.Errorf("unsupported cadastre catalog: %s", c.Cadastre.Catalog)
	}
}

func initSales(sc config.SalesConfig, pool db.Pool) (enrich.SalesSource, error) {
	switch sc.Source {
	case "http":
		var opts []dvf.Option
		if sc.BaseURL != "" {
			opts = append(opts, dvf.WithBaseURL(sc.BaseURL))
		}
		if sc.RateLimit > 0 {
			opts = append(opts, dvf.WithRateLimit(sc.RateLimit))
		}
		return dvf.NewHTTPClient(opts...), nil
	case "postgis":
		if pool == nil {
			return nil, eris.New("sales source postgis requires the postgres store")
		}
		return dvf.NewPostGISSource(pool), nil
	default:
		return nil, eris.Errorf("unsupported sales source: %s", sc.Source)
	}
}

func initWeights(path string) (score.Weights, error) {
	if path == "" {
		return score.DefaultWeights(), nil
	}
	w, err := score.LoadWeights(path)
	if err != nil {
		return score.Weights{}, eris.Wrap(err, "load scoring weights")
	}
	zap.L().Info("scoring weights loaded", zap.String("path", path))
	return w, nil
}

func searchSettings(p config.PipelineConfig) candidate.Settings {
	s := candidate.DefaultSettings()
	if p.AddressResults > 0 {
		s.AddressResults = p.AddressResults
	}
	if p.ExpandedAddressResults > 0 {
		s.ExpandedAddressResults = p.ExpandedAddressResults
	}
	if p.ExtraAddresses > 0 {
		s.ExtraAddresses = p.ExtraAddresses
	}
	if p.DedupeMeters > 0 {
		s.DedupeMeters = p.DedupeMeters
	}
	if p.HalfWidthMeters > 0 {
		s.HalfWidthMeters = p.HalfWidthMeters
	}
	if p.ExpandedHalfWidthMeters > 0 {
		s.ExpandedHalfWidthMeters = p.ExpandedHalfWidthMeters
	}
	if p.MaxCandidates > 0 {
		s.MaxCandidates = p.MaxCandidates
	}
	if p.ReverseGeocodeLimit > 0 {
		s.ReverseGeocodeLimit = p.ReverseGeocodeLimit
	}
	if p.ReverseConcurrency > 0 {
		s.ReverseConcurrency = p.ReverseConcurrency
	}
	return s
}
