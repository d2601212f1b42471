// Package event defines the immutable domain events fanned out to clients:
// presence changes, posted messages, and typing indicators.
package event

import (
	"encoding/json"
	"time"
)

// Event kinds as they appear in the wire "type" field.
const (
	KindUserConnected    = "user_connected"
	KindUserDisconnected = "user_disconnected"
	KindMessage          = "message"
	KindTyping           = "typing"
)

// Event is one immutable fact to be delivered to a recipient set.
// Channel returns 0 for events not scoped to a channel.
type Event interface {
	Kind() string
	Channel() int64
	Origin() int64
}

// Now returns the current wall clock as float seconds since the Unix epoch,
// the timestamp format clients expect.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// UserConnected announces that a user came online.
type UserConnected struct {
	Type        string  `json:"type"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	Timestamp   float64 `json:"timestamp"`
}

// NewUserConnected builds a UserConnected event stamped with the current time.
func NewUserConnected(userID int64, username string, displayName *string) UserConnected {
	return UserConnected{
		Type:        KindUserConnected,
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		Timestamp:   Now(),
	}
}

func (e UserConnected) Kind() string   { return e.Type }
func (e UserConnected) Channel() int64 { return 0 }
func (e UserConnected) Origin() int64  { return e.UserID }

// UserDisconnected announces that a user went offline.
type UserDisconnected struct {
	Type        string  `json:"type"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	Timestamp   float64 `json:"timestamp"`
}

// NewUserDisconnected builds a UserDisconnected event stamped with the current time.
func NewUserDisconnected(userID int64, username string, displayName *string) UserDisconnected {
	return UserDisconnected{
		Type:        KindUserDisconnected,
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		Timestamp:   Now(),
	}
}

func (e UserDisconnected) Kind() string   { return e.Type }
func (e UserDisconnected) Channel() int64 { return 0 }
func (e UserDisconnected) Origin() int64  { return e.UserID }

// MessagePosted carries a chat message into a channel.
type MessagePosted struct {
	Type       string  `json:"type"`
	UserID     int64   `json:"user_id"`
	ChannelID  int64   `json:"channel_id"`
	Content    string  `json:"content"`
	SenderName string  `json:"sender_name"`
	Timestamp  float64 `json:"timestamp"`
}

// NewMessagePosted builds a MessagePosted event stamped with the current time.
func NewMessagePosted(userID, channelID int64, content, senderName string) MessagePosted {
	return MessagePosted{
		Type:       KindMessage,
		UserID:     userID,
		ChannelID:  channelID,
		Content:    content,
		SenderName: senderName,
		Timestamp:  Now(),
	}
}

func (e MessagePosted) Kind() string   { return e.Type }
func (e MessagePosted) Channel() int64 { return e.ChannelID }
func (e MessagePosted) Origin() int64  { return e.UserID }

// TypingChanged signals that a user started or stopped typing in a channel.
// It carries no timestamp on the wire.
type TypingChanged struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	ChannelID int64  `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
	UserName  string `json:"user_name"`
}

// NewTypingChanged builds a TypingChanged event.
func NewTypingChanged(userID, channelID int64, isTyping bool, userName string) TypingChanged {
	return TypingChanged{
		Type:      KindTyping,
		UserID:    userID,
		ChannelID: channelID,
		IsTyping:  isTyping,
		UserName:  userName,
	}
}

func (e TypingChanged) Kind() string   { return e.Type }
func (e TypingChanged) Channel() int64 { return e.ChannelID }
func (e TypingChanged) Origin() int64  { return e.UserID }

// Raw is a pre-encoded event relayed from another server instance. The
// payload is written to recipients byte-for-byte as received.
type Raw struct {
	kind    string
	channel int64
	origin  int64
	payload json.RawMessage
}

// NewRaw wraps an already-serialized event with its routing metadata.
func NewRaw(kind string, channel, origin int64, payload []byte) Raw {
	return Raw{kind: kind, channel: channel, origin: origin, payload: payload}
}

func (e Raw) Kind() string   { return e.kind }
func (e Raw) Channel() int64 { return e.channel }
func (e Raw) Origin() int64  { return e.origin }

// MarshalJSON emits the relayed payload unchanged.
func (e Raw) MarshalJSON() ([]byte, error) {
	return e.payload, nil
}
