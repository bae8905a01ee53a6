package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const (
	EnvPrefix = "PRICECMP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "PRICECMP_APP_ENV"
	EnvPort               = "PRICECMP_APP_PORT"
	EnvLogLevel           = "PRICECMP_LOG_LEVEL"
	EnvBackendBaseURL     = "PRICECMP_BACKEND_BASE_URL"
	EnvBackendTimeout     = "PRICECMP_BACKEND_TIMEOUT"
	EnvBackendLimit       = "PRICECMP_BACKEND_COMPARE_LIMIT"
	EnvDefaultPageSize    = "PRICECMP_CONSOLE_PAGE_SIZE"
	EnvMaxPageSize        = "PRICECMP_CONSOLE_MAX_PAGE_SIZE"
	EnvMerchantDomain     = "PRICECMP_CONSOLE_MERCHANT_DOMAIN"
	EnvCORSOrigins        = "PRICECMP_CONSOLE_CORS_ORIGINS"
	EnvRedisURL           = "PRICECMP_REDIS_URL"
	EnvRowCacheTTL        = "PRICECMP_REDIS_ROW_CACHE_TTL"
	EnvCronInterval       = "PRICECMP_CRON_INTERVAL"
	EnvCronAssetsSyncSize = "PRICECMP_CRON_ASSETS_SYNC_LIMIT"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Console ConsoleConfig
	Redis   RedisConfig
	Cron    CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PRICECMP_APP_ENV" required:"true"`
	Port         string `envconfig:"PRICECMP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PRICECMP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRICECMP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the REST service that owns scraping, snapshots and assets.
type BackendConfig struct {
	BaseURL           string        `envconfig:"PRICECMP_BACKEND_BASE_URL" required:"true"`
	Timeout           time.Duration `envconfig:"PRICECMP_BACKEND_TIMEOUT" default:"20s"`
	CompareLimit      int           `envconfig:"PRICECMP_BACKEND_COMPARE_LIMIT" default:"2000"`
	AssetsBatchSize   int           `envconfig:"PRICECMP_BACKEND_ASSETS_BATCH_SIZE" default:"200"`
	AssetsConcurrency int           `envconfig:"PRICECMP_BACKEND_ASSETS_CONCURRENCY" default:"4"`
}

type ConsoleConfig struct {
	DefaultPageSize int           `envconfig:"PRICECMP_CONSOLE_PAGE_SIZE" default:"50"`
	MaxPageSize     int           `envconfig:"PRICECMP_CONSOLE_MAX_PAGE_SIZE" default:"2000"`
	MerchantDomain  string        `envconfig:"PRICECMP_CONSOLE_MERCHANT_DOMAIN" default:"https://praktis.bg"`
	GroupsTTL       time.Duration `envconfig:"PRICECMP_CONSOLE_GROUPS_TTL" default:"5m"`
	SessionIdleTTL  time.Duration `envconfig:"PRICECMP_CONSOLE_SESSION_IDLE_TTL" default:"30m"`
	FallbackToCache bool          `envconfig:"PRICECMP_CONSOLE_FALLBACK_TO_CACHE" default:"true"`
	CORSOrigins     []string      `envconfig:"PRICECMP_CONSOLE_CORS_ORIGINS" default:"*"`
	Columns         []string      `envconfig:"PRICECMP_CONSOLE_COLUMNS"`
	ExportImages    bool          `envconfig:"PRICECMP_CONSOLE_EXPORT_IMAGES" default:"true"`
	// ScrapeRateLimit caps manual scrape triggers per view and per client IP
	// inside ScrapeRateWindow. Enforced only when Redis is configured.
	ScrapeRateLimit  int           `envconfig:"PRICECMP_CONSOLE_SCRAPE_RATE_LIMIT" default:"6"`
	ScrapeRateWindow time.Duration `envconfig:"PRICECMP_CONSOLE_SCRAPE_RATE_WINDOW" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables the row cache and cron lock.
type RedisConfig struct {
	URL          string        `envconfig:"PRICECMP_REDIS_URL"`
	Address      string        `envconfig:"PRICECMP_REDIS_ADDR"`
	Password     string        `envconfig:"PRICECMP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRICECMP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRICECMP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRICECMP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRICECMP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRICECMP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRICECMP_REDIS_WRITE_TIMEOUT" default:"5s"`
	RowCacheTTL  time.Duration `envconfig:"PRICECMP_REDIS_ROW_CACHE_TTL" default:"24h"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"PRICECMP_CRON_INTERVAL" default:"24h"`
	LockKey         string        `envconfig:"PRICECMP_CRON_LOCK_KEY" default:"pc:cron:lock"`
	LockTTL         time.Duration `envconfig:"PRICECMP_CRON_LOCK_TTL" default:"6h"`
	AssetsSyncLimit int           `envconfig:"PRICECMP_CRON_ASSETS_SYNC_LIMIT" default:"500"`
	ScrapeAll       bool          `envconfig:"PRICECMP_CRON_SCRAPE_ALL" default:"true"`
	AssetsSync      bool          `envconfig:"PRICECMP_CRON_ASSETS_SYNC" default:"true"`
}

func (c *Config) validate() error {
	var err error
	if u, parseErr := url.Parse(strings.TrimSpace(c.Backend.BaseURL)); parseErr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("%s must be an absolute url", EnvBackendBaseURL))
	}
	if c.Backend.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvBackendTimeout))
	}
	if c.Backend.CompareLimit < 1 || c.Backend.CompareLimit > 10000 {
		err = multierr.Append(err, fmt.Errorf("%s must be between 1 and 10000", EnvBackendLimit))
	}
	if c.Console.DefaultPageSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvDefaultPageSize))
	}
	if c.Console.MaxPageSize < c.Console.DefaultPageSize {
		err = multierr.Append(err, fmt.Errorf("%s must be >= %s", EnvMaxPageSize, EnvDefaultPageSize))
	}
	if strings.TrimSpace(c.Console.MerchantDomain) == "" {
		err = multierr.Append(err, errors.New(EnvMerchantDomain+" is required"))
	}
	if c.Backend.AssetsBatchSize <= 0 {
		c.Backend.AssetsBatchSize = 200
	}
	if c.Backend.AssetsConcurrency <= 0 {
		c.Backend.AssetsConcurrency = 1
	}
	return err
}
