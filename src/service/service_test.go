package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
)

type stubConn struct {
	mu      sync.Mutex
	written [][]byte
}

func (s *stubConn) ReadJSON(any) error { select {} }

func (s *stubConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.written = append(s.written, data)
	s.mu.Unlock()
	return nil
}

func (s *stubConn) Ping(time.Time) error              { return nil }
func (s *stubConn) SetReadDeadline(time.Time) error   { return nil }
func (s *stubConn) SetWriteDeadline(time.Time) error  { return nil }
func (s *stubConn) SetPongHandler(func(string) error) {}
func (s *stubConn) Close() error                      { return nil }

func (s *stubConn) payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([][]byte, len(s.written))
	copy(cp, s.written)
	return cp
}

type fixture struct {
	reg *registry.Registry
	dir *directory.Static
	svc *Service
}

func newFixture() *fixture {
	reg := registry.New(zerolog.Nop())
	dir := directory.NewStatic()
	rt := router.New(reg, router.BroadcastAll{Registry: reg}, zerolog.Nop())
	return &fixture{
		reg: reg,
		dir: dir,
		svc: New(reg, rt, dir, zerolog.Nop()),
	}
}

func (fx *fixture) connect(t *testing.T, userID int64, username string, displayName *string) *stubConn {
	t.Helper()
	transport := &stubConn{}
	c := registry.NewConnection(userID, username, displayName, transport)
	fx.reg.Register(c)
	go c.WritePump(time.Second)
	t.Cleanup(c.Close)
	return transport
}

func waitForWrites(t *testing.T, s *stubConn, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := s.payloads(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, got %d", n, len(s.payloads()))
	return nil
}

func TestPublishMessageUsesConnectedSenderName(t *testing.T) {
	fx := newFixture()
	display := "Alice Example"
	fx.connect(t, 42, "alice", &display)
	receiver := fx.connect(t, 43, "bob", nil)

	d, err := fx.svc.PublishMessage(context.Background(), 42, 7, "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Delivered)

	got := waitForWrites(t, receiver, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	assert.Equal(t, "message", decoded["type"])
	assert.Equal(t, "Alice Example", decoded["sender_name"])
	assert.Equal(t, "hi", decoded["content"])
}

func TestPublishMessageFallsBackToDirectory(t *testing.T) {
	fx := newFixture()
	receiver := fx.connect(t, 43, "bob", nil)

	// Sender 42 has no live connection but exists in the directory, the
	// case for a message posted over REST from another device.
	fx.dir.AddUser(42, "alice", nil)

	d, err := fx.svc.PublishMessage(context.Background(), 42, 7, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Delivered)

	got := waitForWrites(t, receiver, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	assert.Equal(t, "alice", decoded["sender_name"])
}

func TestPublishMessageUnknownSender(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.PublishMessage(context.Background(), 99, 7, "hi")
	assert.ErrorIs(t, err, directory.ErrUserNotFound)
}

func TestPublishTyping(t *testing.T) {
	fx := newFixture()
	fx.connect(t, 42, "alice", nil)
	receiver := fx.connect(t, 43, "bob", nil)

	_, err := fx.svc.PublishTyping(context.Background(), 42, 7, true)
	require.NoError(t, err)

	got := waitForWrites(t, receiver, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	assert.Equal(t, "typing", decoded["type"])
	assert.Equal(t, true, decoded["is_typing"])
	assert.Equal(t, "alice", decoded["user_name"])
}

func TestPresence(t *testing.T) {
	fx := newFixture()
	display := "Alice Example"
	fx.connect(t, 42, "alice", &display)
	fx.connect(t, 43, "bob", nil)

	entries := fx.svc.Presence()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, fx.svc.ConnectionCount())

	byID := make(map[int64]PresenceEntry, len(entries))
	for _, e := range entries {
		byID[e.UserID] = e
	}
	require.Contains(t, byID, int64(42))
	require.Contains(t, byID, int64(43))
	assert.Equal(t, "alice", byID[42].Username)
	assert.Equal(t, "Alice Example", *byID[42].DisplayName)
	assert.Nil(t, byID[43].DisplayName)
}

func TestPresenceEmptyWhenNoConnections(t *testing.T) {
	fx := newFixture()
	assert.Empty(t, fx.svc.Presence())
	assert.Zero(t, fx.svc.ConnectionCount())
}
