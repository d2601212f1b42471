// Package directory holds the narrow interfaces through which the gateway
// consumes the persistence layer: user display lookup and channel
// membership checks. Storage itself lives elsewhere.
package directory

import (
	"context"
	"errors"
	"sync"
)

// ErrUserNotFound is returned when a user id has no directory entry.
var ErrUserNotFound = errors.New("directory: user not found")

// UserDisplay is what the gateway needs to announce a user.
type UserDisplay struct {
	Username    string
	DisplayName *string
}

// Name returns the display name, falling back to the username.
func (d UserDisplay) Name() string {
	if d.DisplayName != nil && *d.DisplayName != "" {
		return *d.DisplayName
	}
	return d.Username
}

// UserDirectory resolves a user id to its display identity.
type UserDirectory interface {
	LookupUserDisplay(ctx context.Context, userID int64) (UserDisplay, error)
}

// MembershipChecker reports whether a user belongs to a channel. Needed for
// the membership-filtered recipient policy.
type MembershipChecker interface {
	IsChannelMember(ctx context.Context, userID, channelID int64) (bool, error)
}

// Static is an in-memory directory for tests and standalone runs.
type Static struct {
	mu      sync.RWMutex
	users   map[int64]UserDisplay
	members map[int64]map[int64]bool // channel -> set of user ids
}

// NewStatic creates an empty in-memory directory.
func NewStatic() *Static {
	return &Static{
		users:   make(map[int64]UserDisplay),
		members: make(map[int64]map[int64]bool),
	}
}

// AddUser registers a user's display identity.
func (s *Static) AddUser(userID int64, username string, displayName *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = UserDisplay{Username: username, DisplayName: displayName}
}

// AddMember adds a user to a channel.
func (s *Static) AddMember(channelID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[channelID] == nil {
		s.members[channelID] = make(map[int64]bool)
	}
	s.members[channelID][userID] = true
}

// LookupUserDisplay implements UserDirectory.
func (s *Static) LookupUserDisplay(_ context.Context, userID int64) (UserDisplay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[userID]
	if !ok {
		return UserDisplay{}, ErrUserNotFound
	}
	return d, nil
}

// IsChannelMember implements MembershipChecker.
func (s *Static) IsChannelMember(_ context.Context, userID, channelID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[channelID][userID], nil
}
