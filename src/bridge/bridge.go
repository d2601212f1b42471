// Package bridge relays domain events between gateway instances so a user
// connected to one node still sees events originating on another.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/yamadatarousan/slack-clone/src/event"
)

// Bridge defines the interface for cross-instance event broadcasting.
type Bridge interface {
	// Publish sends an event to all other instances via the bridge.
	Publish(ev event.Event) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the event router to receive events
// relayed from other instances.
type BroadcastTarget interface {
	BroadcastLocal(ev event.Event)
}

// envelope wraps a serialized event with the originating instance id, so a
// node can skip its own published events, and with the routing metadata the
// receiving router needs for recipient resolution.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Kind       string          `json:"kind"`
	ChannelID  int64           `json:"channel_id,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	Event      json.RawMessage `json:"event"`
}

func encodeEnvelope(instanceID string, ev event.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode event: %w", err)
	}
	return json.Marshal(envelope{
		InstanceID: instanceID,
		Kind:       ev.Kind(),
		ChannelID:  ev.Channel(),
		UserID:     ev.Origin(),
		Event:      payload,
	})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("bridge: decode envelope: %w", err)
	}
	return env, nil
}

func (e envelope) rawEvent() event.Raw {
	return event.NewRaw(e.Kind, e.ChannelID, e.UserID, e.Event)
}
