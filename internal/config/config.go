package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Redis          RedisConfig
	Transport      TransportConfig
	Logging        LoggingConfig
	Stream         StreamConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	License        LicenseConfig
	Permissions    PermissionsConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeoutSeconds time.Duration `mapstructure:"read_timeout_seconds"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TransportConfig struct {
	Type  string      `mapstructure:"type"`
	Topic string      `mapstructure:"topic"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StreamConfig struct {
	HeartbeatInterval         time.Duration `mapstructure:"heartbeat_interval"`
	PingInterval              time.Duration `mapstructure:"ping_interval"`
	PermissionRefreshInterval time.Duration `mapstructure:"permission_refresh_interval"`
	ConnectionTTL             time.Duration `mapstructure:"connection_ttl"`
	ProjectConnectionCap      int           `mapstructure:"project_connection_cap"`
	ClientBuffer              int           `mapstructure:"client_buffer"`
	LockWaitTimeout           time.Duration `mapstructure:"lock_wait_timeout"`
	LockHoldTimeout           time.Duration `mapstructure:"lock_hold_timeout"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type LicenseConfig struct {
	EventSubscriptions bool `mapstructure:"event_subscriptions"`
}

type PermissionsConfig struct {
	PolicyFile string `mapstructure:"policy_file"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
