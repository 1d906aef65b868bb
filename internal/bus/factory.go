package bus

import (
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"

	"keyhive/internal/config"
	"keyhive/internal/constants"
	"keyhive/internal/logger"
)

func NewTransport(cfg config.TransportConfig, redisCfg config.RedisConfig, log logger.Logger) (Transport, error) {
	switch cfg.Type {
	case constants.TransportTypeRedis:
		opts := &redis.Options{
			Addr:     net.JoinHostPort(redisCfg.Host, strconv.Itoa(redisCfg.Port)),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}
		return NewRedisTransport(opts, cfg.Topic, log), nil
	case constants.TransportTypeKafka:
		return NewKafkaTransport(cfg.Kafka, cfg.Topic, log), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}
}
