// Package monitor runs the process-wide liveness sweep. Each session probes
// its own peer; the sweep is the backstop that reclaims connections whose
// session stalled, so the registry can never accumulate dead entries.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/event"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
)

// Config tunes the sweep.
type Config struct {
	// Interval is the sweep period.
	Interval time.Duration
	// Staleness is how long a connection may go unheard before the sweep
	// probes it.
	Staleness time.Duration
	// PingTimeout bounds each probe write.
	PingTimeout time.Duration
}

// DefaultConfig returns the standard sweep timing.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Staleness:   300 * time.Second,
		PingTimeout: 10 * time.Second,
	}
}

// Monitor periodically probes stale connections and evicts unresponsive
// ones, announcing their departure.
type Monitor struct {
	registry *registry.Registry
	router   *router.Router
	cfg      Config
	logger   zerolog.Logger
}

// New creates a monitor over the given registry.
func New(reg *registry.Registry, rt *router.Router, cfg Config, logger zerolog.Logger) *Monitor {
	return &Monitor{
		registry: reg,
		router:   rt,
		cfg:      cfg,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// Run sweeps until the context is cancelled. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep probes every connection past the staleness threshold. A successful
// probe write resets the connection's last-seen time; a failed one evicts
// the connection and emits exactly one user_disconnected for it. Evicting a
// connection another path already removed is a no-op.
func (m *Monitor) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.Staleness)
	for _, c := range m.registry.Stale(cutoff) {
		if err := c.Ping(time.Now().Add(m.cfg.PingTimeout)); err == nil {
			c.Touch()
			continue
		}
		m.evict(ctx, c)
	}
}

func (m *Monitor) evict(ctx context.Context, c *registry.Connection) {
	if !m.registry.Drop(c) {
		return
	}
	m.logger.Info().Int64("user_id", c.UserID).Msg("evicting unresponsive connection")
	c.Close()
	m.router.BroadcastExcept(ctx,
		event.NewUserDisconnected(c.UserID, c.Username, c.DisplayName),
		c.UserID)
}
