// Package service is the publish API handed to REST collaborators: after a
// row is written, the REST side calls into here to push the live event.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/event"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
)

// PresenceEntry is one live connection in the presence snapshot.
type PresenceEntry struct {
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
}

// Service exposes the realtime core to the REST write paths.
type Service struct {
	registry  *registry.Registry
	router    *router.Router
	directory directory.UserDirectory
	logger    zerolog.Logger
}

// New creates a service over the given core components.
func New(reg *registry.Registry, rt *router.Router, dir directory.UserDirectory, logger zerolog.Logger) *Service {
	return &Service{
		registry:  reg,
		router:    rt,
		directory: dir,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Publish broadcasts an already-constructed event.
func (s *Service) Publish(ctx context.Context, ev event.Event) router.Delivery {
	return s.router.Broadcast(ctx, ev)
}

// PublishMessage resolves the sender's display name and broadcasts a
// message event, the call the message-persistence endpoint makes after a
// successful write.
func (s *Service) PublishMessage(ctx context.Context, userID, channelID int64, content string) (router.Delivery, error) {
	name, err := s.senderName(ctx, userID)
	if err != nil {
		return router.Delivery{}, err
	}
	ev := event.NewMessagePosted(userID, channelID, content, name)
	return s.router.Broadcast(ctx, ev), nil
}

// PublishTyping broadcasts a typing indicator on behalf of a user.
func (s *Service) PublishTyping(ctx context.Context, userID, channelID int64, isTyping bool) (router.Delivery, error) {
	name, err := s.senderName(ctx, userID)
	if err != nil {
		return router.Delivery{}, err
	}
	ev := event.NewTypingChanged(userID, channelID, isTyping, name)
	return s.router.Broadcast(ctx, ev), nil
}

// Presence returns the current live-connection snapshot. This is distinct
// from the persisted online flag owned by the REST backend.
func (s *Service) Presence() []PresenceEntry {
	conns := s.registry.Connections()
	entries := make([]PresenceEntry, 0, len(conns))
	for _, c := range conns {
		entries = append(entries, PresenceEntry{
			UserID:      c.UserID,
			Username:    c.Username,
			DisplayName: c.DisplayName,
		})
	}
	return entries
}

// ConnectionCount returns the number of live connections.
func (s *Service) ConnectionCount() int {
	return s.registry.Len()
}

// senderName prefers the registry's cached identity for connected users and
// falls back to a directory lookup for senders without a live connection.
func (s *Service) senderName(ctx context.Context, userID int64) (string, error) {
	if c, ok := s.registry.Get(userID); ok {
		return c.SenderName(), nil
	}
	d, err := s.directory.LookupUserDisplay(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("service: resolve sender %d: %w", userID, err)
	}
	return d.Name(), nil
}
