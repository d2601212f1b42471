package types

import "time"

// Frame is an inbound client message. Two kinds are recognized; anything
// else is silently ignored by the session.
type Frame struct {
	Type      string `json:"type"`
	ChannelID int64  `json:"channel_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
}

// Recognized inbound frame kinds.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
)

// Conn abstracts a WebSocket connection for testability. Implementations
// must allow Ping and Close to be called concurrently with reads and writes.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Ping(deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}
