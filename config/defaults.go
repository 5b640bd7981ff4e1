package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)

	// Auth
	viper.SetDefault("auth.jwtSecret", "default-secret")
	viper.SetDefault("auth.revocationListKey", "jwt:revoked")

	// Redis
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolSize", 100)
	viper.SetDefault("redis.poolTimeout", 5)

	// Membership
	viper.SetDefault("membership.type", "redis")
	viper.SetDefault("membership.sqlitePath", "tiny-chat.db")

	// Broker
	viper.SetDefault("broker.enabled", false)
	viper.SetDefault("broker.type", "redis")
	viper.SetDefault("broker.topic", "chat-events")
	viper.SetDefault("broker.kafka.groupID", "tiny-chat")

	// WebSocket
	viper.SetDefault("websocket.heartbeatInterval", 5)
	viper.SetDefault("websocket.clientTimeout", 10)
	viper.SetDefault("websocket.writeTimeout", 10)
	viper.SetDefault("websocket.messageSizeLimit", 4096)
	viper.SetDefault("websocket.outboundBuffer", 256)

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
