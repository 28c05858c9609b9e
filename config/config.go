package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Redis    Redis
	API      API
	Cache    Cache
	Jobs     Jobs
	Session  Session
}

type Redis struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type API struct {
	Debug      bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	TrackerApi TrackerApi
}

type TrackerApi struct {
	Url string `env:"TRACKER_API_URL"`
}

// Cache holds the staleness window per cached entity kind. A cached
// value older than its window is eligible for refetch but is still
// served when the refetch fails.
type Cache struct {
	PortfoliosExpiration     time.Duration `env:"CACHE_PORTFOLIOS_EXPIRATION" envDefault:"5m"`
	PortfolioExpiration      time.Duration `env:"CACHE_PORTFOLIO_EXPIRATION" envDefault:"2m"`
	TransactionsExpiration   time.Duration `env:"CACHE_TRANSACTIONS_EXPIRATION" envDefault:"2m"`
	MarketSummaryExpiration  time.Duration `env:"CACHE_MARKET_SUMMARY_EXPIRATION" envDefault:"5m"`
	PopularSymbolsExpiration time.Duration `env:"CACHE_POPULAR_SYMBOLS_EXPIRATION" envDefault:"1h"`
	CurrentPricesExpiration  time.Duration `env:"CACHE_CURRENT_PRICES_EXPIRATION" envDefault:"30s"`
	HistoricalExpiration     time.Duration `env:"CACHE_HISTORICAL_EXPIRATION" envDefault:"10m"`
}

type Jobs struct {
	MarketSummaryRefreshInterval time.Duration `env:"MARKET_SUMMARY_REFRESH_JOB_INTERVAL" envDefault:"5m"`
	CurrentPricesRefreshInterval time.Duration `env:"CURRENT_PRICES_REFRESH_JOB_INTERVAL" envDefault:"60s"`
}

type Session struct {
	StorageKey string `env:"SESSION_STORAGE_KEY" envDefault:"portfolio_tracker:session"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
