// Package router serializes domain events and delivers them to the resolved
// recipient set. A write failure for one recipient never aborts delivery to
// the others.
package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/event"
	"github.com/yamadatarousan/slack-clone/src/registry"
)

// EventBridge forwards events to other server instances. Defined here to
// avoid a circular import with the bridge package.
type EventBridge interface {
	Publish(ev event.Event) error
	Available() bool
}

// Delivery reports how a broadcast went, for observability.
type Delivery struct {
	Delivered int
	Attempted int
}

// Router computes recipient sets and pushes serialized events to them.
type Router struct {
	registry *registry.Registry
	resolver RecipientResolver
	logger   zerolog.Logger

	mu     sync.RWMutex
	bridge EventBridge
}

// New creates a router over the given registry and recipient policy.
func New(reg *registry.Registry, resolver RecipientResolver, logger zerolog.Logger) *Router {
	return &Router{
		registry: reg,
		resolver: resolver,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// SetBridge attaches a cross-instance event bridge. When set, broadcast
// events are also forwarded to other instances.
func (r *Router) SetBridge(b EventBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = b
}

// Broadcast resolves the recipient set for an event and delivers it, also
// publishing to the bridge when one is attached.
func (r *Router) Broadcast(ctx context.Context, ev event.Event) Delivery {
	r.publishToBridge(ev)
	return r.Deliver(ev, r.resolver.Resolve(ctx, ev))
}

// BroadcastExcept behaves like Broadcast but skips one user, used for
// presence announcements where the subject must not hear about itself.
func (r *Router) BroadcastExcept(ctx context.Context, ev event.Event, excludeUserID int64) Delivery {
	r.publishToBridge(ev)

	conns := r.resolver.Resolve(ctx, ev)
	kept := conns[:0]
	for _, c := range conns {
		if c.UserID != excludeUserID {
			kept = append(kept, c)
		}
	}
	return r.Deliver(ev, kept)
}

// BroadcastLocal delivers an event relayed from the bridge to local
// recipients only. It never re-publishes, preventing relay loops.
func (r *Router) BroadcastLocal(ev event.Event) {
	r.Deliver(ev, r.resolver.Resolve(context.Background(), ev))
}

// SendTo delivers an event to a single user, if connected.
func (r *Router) SendTo(userID int64, ev event.Event) bool {
	c, ok := r.registry.Get(userID)
	if !ok {
		return false
	}
	d := r.Deliver(ev, []*registry.Connection{c})
	return d.Delivered == 1
}

// Deliver serializes the event once and enqueues it to each recipient.
// Per-recipient failures are logged and isolated.
func (r *Router) Deliver(ev event.Event, recipients []*registry.Connection) Delivery {
	d := Delivery{Attempted: len(recipients)}
	if len(recipients) == 0 {
		return d
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Str("kind", ev.Kind()).Msg("event encode failed")
		return d
	}

	for _, c := range recipients {
		if c.Enqueue(payload) {
			d.Delivered++
			continue
		}
		r.logger.Warn().
			Int64("user_id", c.UserID).
			Str("kind", ev.Kind()).
			Msg("send buffer full, dropping event")
	}

	r.logger.Debug().
		Str("kind", ev.Kind()).
		Int("delivered", d.Delivered).
		Int("attempted", d.Attempted).
		Msg("event delivered")
	return d
}

func (r *Router) publishToBridge(ev event.Event) {
	r.mu.RLock()
	b := r.bridge
	r.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(ev); err != nil {
		r.logger.Error().Err(err).Str("kind", ev.Kind()).Msg("bridge publish failed")
	}
}
