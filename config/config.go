// Package config loads gateway configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Recipient policies.
const (
	PolicyAll     = "all"
	PolicyMembers = "members"
)

// Bridge selections.
const (
	BridgeNone  = "none"
	BridgeRedis = "redis"
	BridgeNATS  = "nats"
)

// Config holds the gateway's runtime settings.
type Config struct {
	ListenAddr string

	ReadTimeout     time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	Staleness       time.Duration
	MaxPingFailures int
	WriteTimeout    time.Duration

	SweepInterval  time.Duration
	SweepStaleness time.Duration

	// RecipientPolicy is "all" (broadcast to every live connection, the
	// behavior the REST backend currently relies on) or "members"
	// (restrict channel events to channel members).
	RecipientPolicy string

	// Bridge selects the cross-instance relay: "none", "redis", or "nats".
	Bridge string

	// DatabaseURL enables the Postgres directory when set; otherwise the
	// gateway runs with an empty in-memory directory.
	DatabaseURL string

	// JWTSecret enables handshake token verification when set.
	JWTSecret string
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8001",
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		PingTimeout:     10 * time.Second,
		Staleness:       60 * time.Second,
		MaxPingFailures: 3,
		WriteTimeout:    10 * time.Second,
		SweepInterval:   30 * time.Second,
		SweepStaleness:  300 * time.Second,
		RecipientPolicy: PolicyAll,
		Bridge:          BridgeNone,
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.ReadTimeout = envSeconds("WS_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.PingInterval = envSeconds("WS_PING_INTERVAL", cfg.PingInterval)
	cfg.PingTimeout = envSeconds("WS_PING_TIMEOUT", cfg.PingTimeout)
	cfg.Staleness = envSeconds("WS_STALENESS", cfg.Staleness)
	cfg.WriteTimeout = envSeconds("WS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.SweepInterval = envSeconds("WS_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.SweepStaleness = envSeconds("WS_SWEEP_STALENESS", cfg.SweepStaleness)

	if n := os.Getenv("WS_MAX_PING_FAILURES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.MaxPingFailures = v
		}
	}
	if policy := os.Getenv("RECIPIENT_POLICY"); policy == PolicyAll || policy == PolicyMembers {
		cfg.RecipientPolicy = policy
	}
	if bridge := os.Getenv("WS_BRIDGE"); bridge == BridgeNone || bridge == BridgeRedis || bridge == BridgeNATS {
		cfg.Bridge = bridge
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	return cfg
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
