package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhive/internal/constants"
)

func validConfig() Config {
	cfg := Config{}
	cfg.Server.Port = 8080
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379
	applyDefaults(&cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)

	assert.Equal(t, constants.TransportTypeRedis, cfg.Transport.Type)
	assert.Equal(t, constants.ProjectEventsTopic, cfg.Transport.Topic)
	assert.Equal(t, constants.DefaultConnectionTTL, cfg.Stream.ConnectionTTL)
	assert.Equal(t, constants.DefaultProjectConnCap, cfg.Stream.ProjectConnectionCap)
	assert.Equal(t, constants.DefaultClientBuffer, cfg.Stream.ClientBuffer)
	assert.Equal(t, constants.DefaultLockWaitTimeout, cfg.Stream.LockWaitTimeout)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Stream.ProjectConnectionCap = 20
	cfg.Transport.Type = constants.TransportTypeKafka
	applyDefaults(&cfg)

	assert.Equal(t, 20, cfg.Stream.ProjectConnectionCap)
	assert.Equal(t, constants.TransportTypeKafka, cfg.Transport.Type)
}

func TestValidateStatic(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, ValidateStatic(&cfg))
	})

	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "port zero", mutate: func(cfg *Config) { cfg.Server.Port = 0 }},
		{name: "port out of range", mutate: func(cfg *Config) { cfg.Server.Port = 70000 }},
		{name: "unknown transport", mutate: func(cfg *Config) { cfg.Transport.Type = "nats" }},
		{name: "redis transport without host", mutate: func(cfg *Config) { cfg.Redis.Host = "" }},
		{name: "kafka transport without brokers", mutate: func(cfg *Config) {
			cfg.Transport.Type = constants.TransportTypeKafka
			cfg.Transport.Kafka.GroupID = "events"
		}},
		{name: "kafka transport without group id", mutate: func(cfg *Config) {
			cfg.Transport.Type = constants.TransportTypeKafka
			cfg.Transport.Kafka.Brokers = []string{"localhost:9092"}
		}},
		{name: "zero connection cap", mutate: func(cfg *Config) { cfg.Stream.ProjectConnectionCap = 0 }},
		{name: "ttl not above heartbeat", mutate: func(cfg *Config) {
			cfg.Stream.ConnectionTTL = 30 * time.Second
			cfg.Stream.HeartbeatInterval = 30 * time.Second
		}},
		{name: "rate limit enabled with zero rps", mutate: func(cfg *Config) {
			cfg.RateLimit.Enabled = true
			cfg.RateLimit.Burst = 10
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, ValidateStatic(&cfg))
		})
	}
}

func TestValidateStaticKafkaStillNeedsRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Type = constants.TransportTypeKafka
	cfg.Transport.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Transport.Kafka.GroupID = "events"
	require.NoError(t, ValidateStatic(&cfg))

	cfg.Redis.Host = ""
	assert.Error(t, ValidateStatic(&cfg), "the connection registry always needs redis")
}
