package bridge

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/event"
)

// NATSBridge relays events between gateway instances over a core NATS
// subject. Interchangeable with the Redis bridge.
type NATSBridge struct {
	cfg        *NATSConfig
	instanceID string
	target     BroadcastTarget
	logger     zerolog.Logger

	mu     sync.RWMutex
	conn   *nats.Conn
	sub    *nats.Subscription
	active bool
}

// NewNATSBridge creates a bridge that uses NATS for cross-instance event
// fan-out.
func NewNATSBridge(cfg *NATSConfig, target BroadcastTarget, logger zerolog.Logger) *NATSBridge {
	return &NATSBridge{
		cfg:        cfg,
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "nats-bridge").Logger(),
	}
}

// Start connects to NATS and subscribes to the broadcast subject.
func (b *NATSBridge) Start() error {
	conn, err := nats.Connect(
		b.cfg.ServerList(),
		nats.Name(b.cfg.Name),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(b.cfg.Subject, func(msg *nats.Msg) {
		b.handlePayload(msg.Data)
	})
	if err != nil {
		conn.Close()
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.sub = sub
	b.active = true
	b.mu.Unlock()

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("subject", b.cfg.Subject).
		Msg("nats bridge started")
	return nil
}

// Publish sends an event to all other instances via NATS.
func (b *NATSBridge) Publish(ev event.Event) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	if conn == nil {
		return nats.ErrConnectionClosed
	}
	data, err := encodeEnvelope(b.instanceID, ev)
	if err != nil {
		return err
	}
	return conn.Publish(b.cfg.Subject, data)
}

// Stop unsubscribes and drains the NATS connection.
func (b *NATSBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = false
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Error().Err(err).Msg("unsubscribe error")
		}
		b.sub = nil
	}
	if b.conn != nil {
		err := b.conn.Drain()
		b.conn = nil
		return err
	}
	return nil
}

// Available reports whether the bridge is connected.
func (b *NATSBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *NATSBridge) handlePayload(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to decode nats message")
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("kind", env.Kind).
		Msg("relaying event from nats")

	b.target.BroadcastLocal(env.rawEvent())
}
