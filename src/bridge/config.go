package bridge

import (
	"os"
	"strconv"
	"strings"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "slack-clone:ws:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "slack-clone:ws:",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_WS_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}

// NATSConfig holds connection settings for the NATS bridge.
type NATSConfig struct {
	Servers []string // NATS server URLs, default ["nats://127.0.0.1:4222"]
	Name    string   // connection name, default "slack-clone-gateway"
	Subject string   // broadcast subject, default "slack-clone.ws.broadcast"
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() *NATSConfig {
	return &NATSConfig{
		Servers: []string{"nats://127.0.0.1:4222"},
		Name:    "slack-clone-gateway",
		Subject: "slack-clone.ws.broadcast",
	}
}

// ServerList joins the server URLs into the comma-separated form that
// nats.Connect accepts.
func (c *NATSConfig) ServerList() string {
	return strings.Join(c.Servers, ",")
}

// NATSConfigFromEnv loads NATS configuration from environment variables.
// Falls back to defaults for any missing values.
func NATSConfigFromEnv() *NATSConfig {
	cfg := DefaultNATSConfig()

	if servers := os.Getenv("NATS_SERVERS"); servers != "" {
		cfg.Servers = strings.Split(servers, ",")
	}
	if name := os.Getenv("NATS_NAME"); name != "" {
		cfg.Name = name
	}
	if subject := os.Getenv("NATS_SUBJECT"); subject != "" {
		cfg.Subject = subject
	}
	return cfg
}
