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
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Chart     ChartConfig     `yaml:"chart" mapstructure:"chart"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig selects the storage backend. Driver is memory, sqlite or postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
}

// UpstreamConfig points at the model service.
type UpstreamConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	DefaultModel string  `yaml:"default_model" mapstructure:"default_model"`
}

// Timeout returns the per-request timeout.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSecs) * time.Second
}

// CollectorConfig drives periodic prediction snapshots. Counties are
// "County:State" pairs; an empty list disables collection. Logged predictions
// older than Retention are pruned once a day.
type CollectorConfig struct {
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
	HorizonDays int           `yaml:"horizon_days" mapstructure:"horizon_days"`
	Counties    []string      `yaml:"counties" mapstructure:"counties"`
	Retention   time.Duration `yaml:"retention" mapstructure:"retention"`
}

// HistoryConfig configures historical queries.
type HistoryConfig struct {
	DefaultDays int `yaml:"default_days" mapstructure:"default_days"`
}

// ChartConfig holds default chart dimensions in pixels.
type ChartConfig struct {
	Width  int `yaml:"width" mapstructure:"width"`
	Height int `yaml:"height" mapstructure:"height"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and AQI_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AQI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "aqi.db")
	v.SetDefault("store.csv_path", "data/daily_aqi_by_county_2024.csv")
	v.SetDefault("upstream.base_url", "http://localhost:5001/api")
	v.SetDefault("upstream.timeout_secs", 10)
	v.SetDefault("upstream.rate_limit_rps", 2.0)
	v.SetDefault("upstream.burst", 5)
	v.SetDefault("upstream.default_model", "balanced")
	v.SetDefault("collector.interval", time.Hour)
	v.SetDefault("collector.horizon_days", 3)
	v.SetDefault("collector.counties", []string{})
	v.SetDefault("collector.retention", 30*24*time.Hour)
	v.SetDefault("history.default_days", 30)
	v.SetDefault("chart.width", 900)
	v.SetDefault("chart.height", 380)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 {
		return eris.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Upstream.RateLimitRPS <= 0 || c.Upstream.Burst <= 0 {
		return eris.New("config: upstream rate limit and burst must be positive")
	}
	if len(c.Collector.Counties) > 0 && c.Collector.Interval <= 0 {
		return eris.New("config: collector.interval must be positive when counties are set")
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
