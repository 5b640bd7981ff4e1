package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret must be set")
	}

	if c.Redis.Address == "" {
		return errors.New("redis address must be specified")
	}

	switch strings.ToLower(c.Membership.Type) {
	case "redis":
	case "sqlite":
		if c.Membership.SQLitePath == "" {
			return errors.New("membership.sqlitePath must be set for sqlite membership")
		}
	default:
		return fmt.Errorf("invalid membership type: %s. Must be 'redis' or 'sqlite'", c.Membership.Type)
	}

	if c.Broker.Enabled {
		if c.Broker.Topic == "" {
			return errors.New("broker.topic must be configured when the broker is enabled")
		}
		switch strings.ToLower(c.Broker.Type) {
		case "redis":
		case "kafka":
			if len(c.Broker.Kafka.Brokers) == 0 {
				return errors.New("kafka brokers must be specified for kafka broker")
			}
			if c.Broker.Kafka.GroupID == "" {
				return errors.New("kafka groupID must be specified for kafka broker")
			}
		default:
			return fmt.Errorf("invalid broker type: %s. Must be 'redis' or 'kafka'", c.Broker.Type)
		}
	}

	if c.WebSocket.HeartbeatInterval < 1 {
		return errors.New("heartbeat interval must be at least 1 second")
	}

	if c.WebSocket.HeartbeatInterval >= c.WebSocket.ClientTimeout {
		return errors.New("heartbeat interval should be less than client timeout")
	}

	if c.WebSocket.OutboundBuffer < 1 {
		return errors.New("outbound buffer must be positive")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "TINYCHAT_PORT")

	// Auth
	viper.BindEnv("auth.jwtSecret", "TINYCHAT_AUTH_JWT_SECRET")
	viper.BindEnv("auth.revocationListKey", "TINYCHAT_AUTH_REVOCATION_KEY")

	// Redis
	viper.BindEnv("redis.address", "TINYCHAT_REDIS_ADDRESS")
	viper.BindEnv("redis.password", "TINYCHAT_REDIS_PASSWORD")

	// Membership
	viper.BindEnv("membership.type", "TINYCHAT_MEMBERSHIP_TYPE")
	viper.BindEnv("membership.sqlitePath", "TINYCHAT_MEMBERSHIP_SQLITE_PATH")

	// Broker
	viper.BindEnv("broker.enabled", "TINYCHAT_BROKER_ENABLED")
	viper.BindEnv("broker.type", "TINYCHAT_BROKER_TYPE")
	viper.BindEnv("broker.topic", "TINYCHAT_BROKER_TOPIC")
	viper.BindEnv("broker.kafka.brokers", "TINYCHAT_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.groupID", "TINYCHAT_KAFKA_GROUPID")

	// WebSocket
	viper.BindEnv("websocket.heartbeatInterval", "TINYCHAT_HEARTBEAT_INTERVAL")
	viper.BindEnv("websocket.clientTimeout", "TINYCHAT_CLIENT_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "TINYCHAT_WRITE_TIMEOUT")

	// Metrics
	viper.BindEnv("metrics.enabled", "TINYCHAT_METRICS_ENABLED")
	viper.BindEnv("metrics.port", "TINYCHAT_METRICS_PORT")
}
