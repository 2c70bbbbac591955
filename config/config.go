package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	RemoteAPI     RemoteAPI
	ClickHouse    ClickHouse
	Elasticsearch Elasticsearch
}

type BaseConfig struct {
	IsProduction bool             `env:"PRODUCTION"      envDefault:"false"`
	Backend      SupportedBackend `env:"SUMMARY_BACKEND" envDefault:"remote"`
	API          API
	Query        Query
}

// Sessions that see no requests for SessionIdleTimeout are dropped.
type API struct {
	Port               string        `env:"API_PORT"             envDefault:"8000"`
	AllowedOrigins     []string      `env:"API_ALLOWED_ORIGINS"  envDefault:"*"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"1h"`
}

// Timeout is how long to wait for the data backend before showing a timeout message, and
// BannerDuration is how long error messages stay visible before they are dismissed.
type Query struct {
	Timeout        time.Duration `env:"QUERY_TIMEOUT"         envDefault:"30s"`
	BannerDuration time.Duration `env:"ERROR_BANNER_DURATION" envDefault:"5s"`
	MaxRows        int           `env:"QUERY_MAX_ROWS"        envDefault:"10000"`
}

type RemoteAPI struct {
	BaseURL string `env:"REMOTE_API_BASE_URL"`
	Dataset string `env:"REMOTE_API_DATASET"  envDefault:"hmda_lar"`
}

type ClickHouse struct {
	Address      string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName string `env:"CLICKHOUSE_DB_NAME"`
	Username     string `env:"CLICKHOUSE_USERNAME"`
	Password     string `env:"CLICKHOUSE_PASSWORD"`
	Debug        bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
	Table        string `env:"CLICKHOUSE_TABLE"         envDefault:"hmda_lar"`
}

type Elasticsearch struct {
	Address string `env:"ELASTICSEARCH_ADDRESS"`
	Index   string `env:"ELASTICSEARCH_INDEX"         envDefault:"hmda_lar"`
	Debug   bool   `env:"ELASTICSEARCH_DEBUG_ENABLED" envDefault:"false"`
}

type SupportedBackend string

const (
	BackendRemoteAPI     SupportedBackend = "remote"
	BackendClickHouse    SupportedBackend = "clickhouse"
	BackendElasticsearch SupportedBackend = "elasticsearch"
)

// Reads config from environment variables, after loading them from a .env file if one exists.
// Only the config section of the selected backend is parsed.
func ReadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	parseOptions := env.Options{RequiredIfNoDef: true}

	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	var backendConfig any
	switch config.Backend {
	case BackendRemoteAPI:
		backendConfig = &config.RemoteAPI
	case BackendClickHouse:
		backendConfig = &config.ClickHouse
	case BackendElasticsearch:
		backendConfig = &config.Elasticsearch
	default:
		err := fmt.Errorf(
			"must be one of: '%s', '%s', '%s'",
			BackendRemoteAPI,
			BackendClickHouse,
			BackendElasticsearch,
		)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for SUMMARY_BACKEND in env", config.Backend)
	}

	if err := env.ParseWithOptions(backendConfig, parseOptions); err != nil {
		return Config{}, err
	}

	if err := config.validate(); err != nil {
		return Config{}, wrap.Error(err, "invalid config")
	}

	return config, nil
}

func (config Config) validate() error {
	var errs []error

	if config.Query.Timeout <= 0 {
		errs = append(errs, errors.New("QUERY_TIMEOUT must be positive"))
	}
	if config.Query.BannerDuration <= 0 {
		errs = append(errs, errors.New("ERROR_BANNER_DURATION must be positive"))
	}
	if config.Query.MaxRows <= 0 {
		errs = append(errs, errors.New("QUERY_MAX_ROWS must be positive"))
	}
	if config.API.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}

	if len(errs) != 0 {
		return wrap.Errors("invalid settings", errs...)
	}
	return nil
}
