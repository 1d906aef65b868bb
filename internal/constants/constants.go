package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ProjectEventsTopic = "project.events"
)

const (
	RegistryKeyPrefixConn     = "events:conn:"
	RegistryKeyPrefixConnList = "events:conn-list:"
	RegistryKeyPrefixLock     = "events:lock:"
)

const (
	DefaultConnectionTTL     = 2 * time.Minute
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultPingInterval      = 15 * time.Second
	DefaultPermissionRefresh = 60 * time.Second
	DefaultProjectConnCap    = 5
)

const (
	DefaultLockWaitTimeout = 10 * time.Second
	DefaultLockHoldTimeout = 5 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultClientBuffer = 32
)

const (
	TransportTypeRedis = "redis"
	TransportTypeKafka = "kafka"
)
