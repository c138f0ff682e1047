package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the sentinel process configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Chains      []ChainConfig     `mapstructure:"chains"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Hub         HubConfig         `mapstructure:"hub"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig contains Redis connection settings used by the rate limiter
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig contains the optional downstream event stream settings.
// An empty broker list disables publishing.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	LinkTopic    string        `mapstructure:"link_topic"`
	AlertTopic   string        `mapstructure:"alert_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ChainConfig contains per-chain endpoint settings. Each configured bridge
// yields one watcher subscription on this chain.
type ChainConfig struct {
	Name    string         `mapstructure:"name"`
	WSUrl   string         `mapstructure:"ws_url"`
	Bridges []BridgeConfig `mapstructure:"bridges"`
}

// BridgeConfig names a bridge protocol contract watched on a chain
type BridgeConfig struct {
	Protocol string `mapstructure:"protocol"`
	Contract string `mapstructure:"contract"`
}

// CorrelationConfig contains matching engine settings
type CorrelationConfig struct {
	AmountTolerance    float64       `mapstructure:"amount_tolerance"`
	TimeWindow         time.Duration `mapstructure:"time_window"`
	MinConfidence      float64       `mapstructure:"min_confidence"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	BufferRetention    time.Duration `mapstructure:"buffer_retention"`
	HighValueThreshold string        `mapstructure:"high_value_threshold"`
	HighRiskThreshold  int           `mapstructure:"high_risk_threshold"`
}

// HubConfig contains notification hub settings
type HubConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleTimeout      time.Duration `mapstructure:"stale_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
}

// AuthConfig contains credential verification settings
type AuthConfig struct {
	TokenSecret     string        `mapstructure:"token_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	TokenIssuer     string        `mapstructure:"token_issuer"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "bridge_sentinel")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Kafka defaults
	viper.SetDefault("kafka.link_topic", "bridge.links")
	viper.SetDefault("kafka.alert_topic", "bridge.alerts")
	viper.SetDefault("kafka.write_timeout", "5s")

	// Correlation defaults
	viper.SetDefault("correlation.amount_tolerance", 0.01)
	viper.SetDefault("correlation.time_window", "5m")
	viper.SetDefault("correlation.min_confidence", 0.70)
	viper.SetDefault("correlation.sweep_interval", "30s")
	viper.SetDefault("correlation.buffer_retention", "10m")
	// Raw token units: 100k tokens of an 18-decimal asset.
	viper.SetDefault("correlation.high_value_threshold", "100000000000000000000000")
	viper.SetDefault("correlation.high_risk_threshold", 70)

	// Hub defaults
	viper.SetDefault("hub.heartbeat_interval", "10s")
	viper.SetDefault("hub.stale_timeout", "30s")
	viper.SetDefault("hub.send_buffer", 64)
	viper.SetDefault("hub.max_message_size", 4096)
	viper.SetDefault("hub.write_timeout", "10s")
	viper.SetDefault("hub.handshake_timeout", "10s")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "1h")
	viper.SetDefault("auth.token_issuer", "bridge-sentinel")
	viper.SetDefault("auth.rate_limit_window", "1m")
	viper.SetDefault("auth.rate_limit_max", 120)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	if config.Correlation.MinConfidence <= 0 || config.Correlation.MinConfidence > 1 {
		return fmt.Errorf("correlation.min_confidence must be in (0, 1]")
	}
	if config.Auth.RateLimitMax > 0 && config.Auth.RateLimitWindow < time.Second {
		return fmt.Errorf("auth.rate_limit_window must be at least 1s when rate limiting is enabled")
	}
	for _, chain := range config.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chains[].name is required")
		}
		if chain.WSUrl == "" {
			return fmt.Errorf("chains[%s].ws_url is required", chain.Name)
		}
		for _, bridge := range chain.Bridges {
			if bridge.Protocol == "" || bridge.Contract == "" {
				return fmt.Errorf("chains[%s] bridge entries need protocol and contract", chain.Name)
			}
		}
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
