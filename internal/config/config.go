package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	PoolSize     int    `mapstructure:"pool_size"`
	PoolOverflow int    `mapstructure:"pool_overflow"`
}

// RedisConfig contains Redis settings for the last-known-good cache
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig contains message bus settings
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// CMSWeights holds the component weights, auto-normalized to sum 1
// during Validate
type CMSWeights struct {
	Sentiment  float64 `mapstructure:"sentiment"`
	Volatility float64 `mapstructure:"volatility"`
	Trend      float64 `mapstructure:"trend"`
	Event      float64 `mapstructure:"event"`
}

// CMSThresholds holds the BUY/SELL classification thresholds as positive
// magnitudes; SELL fires below -Sell
type CMSThresholds struct {
	Buy  float64 `mapstructure:"buy"`
	Sell float64 `mapstructure:"sell"`
}

// PipelineConfig contains the signal pipeline settings
type PipelineConfig struct {
	CMSWeights            CMSWeights    `mapstructure:"cms_weights"`
	CMSThresholds         CMSThresholds `mapstructure:"cms_thresholds"`
	SignalEmissionEpsilon float64       `mapstructure:"signal_emission_epsilon"`
	SlotStalenessSeconds  int           `mapstructure:"slot_staleness_seconds"`
	SentimentWindow       int           `mapstructure:"sentiment_window"`
	EventDecayHours       float64       `mapstructure:"event_decay_hours"`
	RegimeWindow          int           `mapstructure:"regime_window"`
	RegimeConfidenceFloor float64       `mapstructure:"regime_confidence_floor"`
	InboxCapacity         int           `mapstructure:"inbox_capacity"`
}

// RiskConfig contains position sizing and stop settings
type RiskConfig struct {
	PerTradeFraction     float64 `mapstructure:"per_trade_fraction"`
	MaxPositionFraction  float64 `mapstructure:"max_position_fraction"`
	ATRStopMultiplier    float64 `mapstructure:"atr_stop_multiplier"`
	TrailingStopFraction float64 `mapstructure:"trailing_stop_fraction"`
}

// TradingConfig contains executor admission settings
type TradingConfig struct {
	MaxDailyTrades     int     `mapstructure:"max_daily_trades"`
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`
	MaxPositionSize    float64 `mapstructure:"max_position_size"`
	AutoTradingEnabled bool    `mapstructure:"auto_trading_enabled"`
	SimulationMode     bool    `mapstructure:"simulation_mode"`
	Capital            float64 `mapstructure:"capital"`
	PollInterval       string  `mapstructure:"poll_interval"`
	BrokerTimeout      string  `mapstructure:"broker_timeout"`
}

// BreakerConfig contains circuit breaker settings for one collaborator
type BreakerConfig struct {
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	RecoverySeconds  int    `mapstructure:"recovery_seconds"`
}

// RetryConfig contains backoff retry settings
type RetryConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BaseDelay   string `mapstructure:"base_delay"`
	MaxDelay    string `mapstructure:"max_delay"`
}

// ResilienceConfig contains the resilience layer settings
type ResilienceConfig struct {
	Breakers                map[string]BreakerConfig `mapstructure:"breakers"`
	Retry                   RetryConfig              `mapstructure:"retry"`
	StoreWriteQueueCapacity int                      `mapstructure:"store_write_queue_capacity"`
	BusBufferCapacity       int                      `mapstructure:"bus_buffer_capacity"`
}

// APIConfig contains HTTP/WS surface settings
type APIConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("QUANTPULSE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "QuantPulse")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "quantpulse")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.pool_overflow", 20)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "quantpulse.")

	v.SetDefault("pipeline.cms_weights.sentiment", 0.4)
	v.SetDefault("pipeline.cms_weights.volatility", 0.3)
	v.SetDefault("pipeline.cms_weights.trend", 0.2)
	v.SetDefault("pipeline.cms_weights.event", 0.1)
	v.SetDefault("pipeline.cms_thresholds.buy", 50.0)
	v.SetDefault("pipeline.cms_thresholds.sell", 50.0)
	v.SetDefault("pipeline.signal_emission_epsilon", 5.0)
	v.SetDefault("pipeline.slot_staleness_seconds", 300)
	v.SetDefault("pipeline.sentiment_window", 20)
	v.SetDefault("pipeline.event_decay_hours", 6.0)
	v.SetDefault("pipeline.regime_window", 100)
	v.SetDefault("pipeline.regime_confidence_floor", 0.3)
	v.SetDefault("pipeline.inbox_capacity", 256)

	v.SetDefault("risk.per_trade_fraction", 0.01)
	v.SetDefault("risk.max_position_fraction", 0.1)
	v.SetDefault("risk.atr_stop_multiplier", 2.0)
	v.SetDefault("risk.trailing_stop_fraction", 0.02)

	v.SetDefault("trading.max_daily_trades", 20)
	v.SetDefault("trading.max_daily_loss", 500.0)
	v.SetDefault("trading.max_position_size", 10000.0)
	v.SetDefault("trading.auto_trading_enabled", true)
	v.SetDefault("trading.simulation_mode", true)
	v.SetDefault("trading.capital", 100000.0)
	v.SetDefault("trading.poll_interval", "2s")
	v.SetDefault("trading.broker_timeout", "30s")

	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.base_delay", "100ms")
	v.SetDefault("resilience.retry.max_delay", "5s")
	v.SetDefault("resilience.store_write_queue_capacity", 10000)
	v.SetDefault("resilience.bus_buffer_capacity", 1000)
	v.SetDefault("resilience.breakers.broker.failure_threshold", 5)
	v.SetDefault("resilience.breakers.broker.recovery_seconds", 30)
	v.SetDefault("resilience.breakers.store.failure_threshold", 5)
	v.SetDefault("resilience.breakers.store.recovery_seconds", 30)
	v.SetDefault("resilience.breakers.bus.failure_threshold", 5)
	v.SetDefault("resilience.breakers.bus.recovery_seconds", 60)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlotStaleness returns the slot staleness window as a duration
func (c *PipelineConfig) SlotStaleness() time.Duration {
	return time.Duration(c.SlotStalenessSeconds) * time.Second
}

// GetPollInterval returns the executor status poll interval
func (c *TradingConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetBrokerTimeout returns the per-call broker deadline
func (c *TradingConfig) GetBrokerTimeout() time.Duration {
	d, err := time.ParseDuration(c.BrokerTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetBaseDelay returns the retry base delay
func (c *RetryConfig) GetBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.BaseDelay)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetMaxDelay returns the retry delay cap
func (c *RetryConfig) GetMaxDelay() time.Duration {
	d, err := time.ParseDuration(c.MaxDelay)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
