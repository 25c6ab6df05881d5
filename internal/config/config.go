package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Cadastre   CadastreConfig   `yaml:"cadastre" mapstructure:"cadastre"`
	Sales      SalesConfig      `yaml:"sales" mapstructure:"sales"`
	Imagery    ImageryConfig    `yaml:"imagery" mapstructure:"imagery"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds the language and vision model settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	VisionModel  string `yaml:"vision_model" mapstructure:"vision_model"`
	ExtractModel string `yaml:"extract_model" mapstructure:"extract_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeocodeConfig configures forward and reverse geocoding.
type GeocodeConfig struct {
	BANURL       string  `yaml:"ban_url" mapstructure:"ban_url"`
	GoogleKey    string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheEnabled bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// CadastreConfig selects the parcel catalog and the cadastral resolver.
type CadastreConfig struct {
	// Catalog is one of "grid", "apicarto", or "shapefile".
	Catalog       string  `yaml:"catalog" mapstructure:"catalog"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	ShapefilePath string  `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesConfig configures the DVF sales-density source.
type SalesConfig struct {
	// Source is "http" or "postgis".
	Source       string  `yaml:"source" mapstructure:"source"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RadiusMeters float64 `yaml:"radius_meters" mapstructure:"radius_meters"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ImageryConfig builds aerial imagery references for candidate centroids.
type ImageryConfig struct {
	URLTemplate string  `yaml:"url_template" mapstructure:"url_template"`
	SpanMeters  float64 `yaml:"span_meters" mapstructure:"span_meters"`
}

// PipelineConfig configures the localization pipeline.
type PipelineConfig struct {
	BatchSize               int     `yaml:"batch_size" mapstructure:"batch_size"`
	DeadlineSecs            int     `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	SuccessThreshold        float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
	LowConfidenceThreshold  float64 `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
	RetryThreshold          float64 `yaml:"retry_threshold" mapstructure:"retry_threshold"`
	PersistTop              int     `yaml:"persist_top" mapstructure:"persist_top"`
	MaxCandidates           int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	ReverseGeocodeLimit     int     `yaml:"reverse_geocode_limit" mapstructure:"reverse_geocode_limit"`
	ReverseConcurrency      int     `yaml:"reverse_concurrency" mapstructure:"reverse_concurrency"`
	HalfWidthMeters         float64 `yaml:"half_width_meters" mapstructure:"half_width_meters"`
	ExpandedHalfWidthMeters float64 `yaml:"expanded_half_width_meters" mapstructure:"expanded_half_width_meters"`
	CellSizeMeters          float64 `yaml:"cell_size_meters" mapstructure:"cell_size_meters"`
	AddressResults          int     `yaml:"address_results" mapstructure:"address_results"`
	ExpandedAddressResults  int     `yaml:"expanded_address_results" mapstructure:"expanded_address_results"`
	ExtraAddresses          int     `yaml:"extra_addresses" mapstructure:"extra_addresses"`
	DedupeMeters            float64 `yaml:"dedupe_meters" mapstructure:"dedupe_meters"`
	WeightsPath             string  `yaml:"weights_path" mapstructure:"weights_path"`
}

// Deadline is the request-wide time budget.
func (p PipelineConfig) Deadline() time.Duration {
	return time.Duration(p.DeadlineSecs) * time.Second
}

// ResilienceConfig configures retries and circuit breakers for capability calls.
type ResilienceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PricingConfig holds per-million-token rates for cost logging.
type PricingConfig struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOCATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "locator.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("geocode.ban_url", "https://api-adresse.data.gouv.fr")
	v.SetDefault("geocode.rate_limit", 40)
	v.SetDefault("geocode.cache_ttl_days", 90)
	v.SetDefault("cadastre.catalog", "grid")
	v.SetDefault("cadastre.base_url", "https://apicarto.ign.fr/api/cadastre")
	v.SetDefault("cadastre.rate_limit", 10)
	v.SetDefault("sales.source", "http")
	v.SetDefault("sales.base_url", "https://api.cquest.org/dvf")
	v.SetDefault("sales.radius_meters", 500)
	v.SetDefault("sales.rate_limit", 5)
	v.SetDefault("imagery.url_template", "https://data.geopf.fr/wms-r?SERVICE=WMS&VERSION=1.3.0&REQUEST=GetMap&LAYERS=ORTHOIMAGERY.ORTHOPHOTOS&STYLES=&CRS=EPSG:4326&BBOX={minlat},{minlng},{maxlat},{maxlng}&WIDTH=512&HEIGHT=512&FORMAT=image/jpeg")
	v.SetDefault("imagery.span_meters", 120)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.deadline_secs", 120)
	v.SetDefault("pipeline.success_threshold", 60)
	v.SetDefault("pipeline.low_confidence_threshold", 40)
	v.SetDefault("pipeline.retry_threshold", 30)
	v.SetDefault("pipeline.persist_top", 15)
	v.SetDefault("pipeline.max_candidates", 50)
	v.SetDefault("pipeline.reverse_geocode_limit", 20)
	v.SetDefault("pipeline.reverse_concurrency", 5)
	v.SetDefault("pipeline.half_width_meters", 2000)
	v.SetDefault("pipeline.expanded_half_width_meters", 4000)
	v.SetDefault("pipeline.cell_size_meters", 200)
	v.SetDefault("pipeline.address_results", 5)
	v.SetDefault("pipeline.expanded_address_results", 10)
	v.SetDefault("pipeline.extra_addresses", 3)
	v.SetDefault("pipeline.dedupe_meters", 25)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 250)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("pricing.input_per_mtok", 3.0)
	v.SetDefault("pricing.output_per_mtok", 15.0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Cadastre.Catalog {
	case "grid", "apicarto", "shapefile":
	default:
		return eris.Errorf("config: unknown cadastre catalog %q", c.Cadastre.Catalog)
	}
	if c.Cadastre.Catalog == "shapefile" && c.Cadastre.ShapefilePath == "" {
		return eris.New("config: cadastre.shapefile_path is required for the shapefile catalog")
	}
	switch c.Sales.Source {
	case "http", "postgis":
	default:
		return eris.Errorf("config: unknown sales source %q", c.Sales.Source)
	}

	p := c.Pipeline
	if p.BatchSize <= 0 {
		return eris.New("config: pipeline.batch_size must be positive")
	}
	if !(p.RetryThreshold <= p.LowConfidenceThreshold && p.LowConfidenceThreshold <= p.SuccessThreshold) {
		return eris.New("config: thresholds must satisfy retry <= low_confidence <= success")
	}
	if p.CellSizeMeters <= 0 || p.HalfWidthMeters <= 0 || p.ExpandedHalfWidthMeters < p.HalfWidthMeters {
		return eris.New("config: invalid grid geometry")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
