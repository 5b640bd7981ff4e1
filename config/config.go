package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server     ServerConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Membership MembershipConfig
	Broker     BrokerConfig
	WebSocket  WebSocketConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  int // Seconds
	WriteTimeout int // Seconds
}

type AuthConfig struct {
	JWTSecret         string
	RevocationListKey string
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout int // Seconds
}

// MembershipConfig selects how conversation membership is resolved:
// "redis" reads member sets from Redis, "sqlite" reads the members
// table of a local SQLite database.
type MembershipConfig struct {
	Type       string
	SQLitePath string
}

// BrokerConfig selects the message broker that feeds domain events from
// the REST tier into the hub. Optional; HTTP ingestion always works.
type BrokerConfig struct {
	Enabled bool
	Type    string
	Topic   string
	Kafka   KafkaConfig
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type WebSocketConfig struct {
	HeartbeatInterval int   // Seconds
	ClientTimeout     int   // Seconds
	WriteTimeout      int   // Seconds
	MessageSizeLimit  int64 // Bytes
	OutboundBuffer    int   // Frames
}

// Heartbeat returns the liveness probe interval as a duration.
func (c WebSocketConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// Timeout returns the inbound-silence window after which a session
// disconnects itself.
func (c WebSocketConfig) Timeout() time.Duration {
	return time.Duration(c.ClientTimeout) * time.Second
}

// WriteDeadline returns the per-frame write budget.
func (c WebSocketConfig) WriteDeadline() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("TINYCHAT")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				initErr = fmt.Errorf("config file error: %w", err)
				return
			}
			// No file is fine; defaults plus env vars carry the config.
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}
