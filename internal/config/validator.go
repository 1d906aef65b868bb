package config

import (
	"fmt"

	"keyhive/internal/constants"
)

func applyDefaults(cfg *Config) {
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = constants.TransportTypeRedis
	}
	if cfg.Transport.Topic == "" {
		cfg.Transport.Topic = constants.ProjectEventsTopic
	}
	if cfg.Stream.HeartbeatInterval == 0 {
		cfg.Stream.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if cfg.Stream.PingInterval == 0 {
		cfg.Stream.PingInterval = constants.DefaultPingInterval
	}
	if cfg.Stream.PermissionRefreshInterval == 0 {
		cfg.Stream.PermissionRefreshInterval = constants.DefaultPermissionRefresh
	}
	if cfg.Stream.ConnectionTTL == 0 {
		cfg.Stream.ConnectionTTL = constants.DefaultConnectionTTL
	}
	if cfg.Stream.ProjectConnectionCap == 0 {
		cfg.Stream.ProjectConnectionCap = constants.DefaultProjectConnCap
	}
	if cfg.Stream.ClientBuffer == 0 {
		cfg.Stream.ClientBuffer = constants.DefaultClientBuffer
	}
	if cfg.Stream.LockWaitTimeout == 0 {
		cfg.Stream.LockWaitTimeout = constants.DefaultLockWaitTimeout
	}
	if cfg.Stream.LockHoldTimeout == 0 {
		cfg.Stream.LockHoldTimeout = constants.DefaultLockHoldTimeout
	}
}

func ValidateStatic(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Transport.Type {
	case constants.TransportTypeRedis:
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for the redis transport")
		}
	case constants.TransportTypeKafka:
		if len(cfg.Transport.Kafka.Brokers) == 0 {
			return fmt.Errorf("transport.kafka.brokers is required for the kafka transport")
		}
		if cfg.Transport.Kafka.GroupID == "" {
			return fmt.Errorf("transport.kafka.group_id is required for the kafka transport")
		}
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for the connection registry")
		}
	default:
		return fmt.Errorf("transport.type must be %q or %q, got %q",
			constants.TransportTypeRedis, constants.TransportTypeKafka, cfg.Transport.Type)
	}

	if cfg.Stream.ProjectConnectionCap < 1 {
		return fmt.Errorf("stream.project_connection_cap must be at least 1, got %d", cfg.Stream.ProjectConnectionCap)
	}

	if cfg.Stream.ConnectionTTL <= cfg.Stream.HeartbeatInterval {
		return fmt.Errorf("stream.connection_ttl (%s) must exceed stream.heartbeat_interval (%s)",
			cfg.Stream.ConnectionTTL, cfg.Stream.HeartbeatInterval)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be positive when rate limiting is enabled")
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive when rate limiting is enabled")
		}
	}

	return nil
}
