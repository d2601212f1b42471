package registry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadatarousan/slack-clone/src/types"
)

// stubConn is a minimal types.Conn for registry tests.
type stubConn struct {
	mu      sync.Mutex
	written [][]byte
	pingErr error
	closed  bool
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

func (s *stubConn) Ping(time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *stubConn) SetReadDeadline(time.Time) error   { return nil }
func (s *stubConn) SetWriteDeadline(time.Time) error  { return nil }
func (s *stubConn) SetPongHandler(func(string) error) {}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newConn(userID int64, username string) *Connection {
	return NewConnection(userID, username, nil, &stubConn{})
}

func TestRegisterAndGet(t *testing.T) {
	r := New(zerolog.Nop())

	c := newConn(42, "alice")
	prev := r.Register(c)
	assert.Nil(t, prev)

	got, ok := r.Get(42)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterReplacesPreviousEntry(t *testing.T) {
	r := New(zerolog.Nop())

	first := newConn(42, "alice")
	second := newConn(42, "alice")

	require.Nil(t, r.Register(first))
	prev := r.Register(second)
	assert.Same(t, first, prev)

	// At most one connection per user.
	assert.Equal(t, 1, r.Len())
	got, _ := r.Get(42)
	assert.Same(t, second, got)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := New(zerolog.Nop())
	r.Register(newConn(42, "alice"))

	assert.True(t, r.Unregister(42))
	assert.False(t, r.Unregister(42))
	assert.Equal(t, 0, r.Len())
}

func TestDropOnlyRemovesMatchingConnection(t *testing.T) {
	r := New(zerolog.Nop())

	old := newConn(42, "alice")
	r.Register(old)
	replacement := newConn(42, "alice")
	r.Register(replacement)

	// The superseded session must not evict its successor.
	assert.False(t, r.Drop(old))
	got, ok := r.Get(42)
	require.True(t, ok)
	assert.Same(t, replacement, got)

	assert.True(t, r.Drop(replacement))
	assert.False(t, r.Drop(replacement))
	assert.Equal(t, 0, r.Len())
}

func TestSnapshot(t *testing.T) {
	r := New(zerolog.Nop())
	r.Register(newConn(42, "alice"))
	r.Register(newConn(43, "bob"))

	ids := r.Snapshot()
	assert.ElementsMatch(t, []int64{42, 43}, ids)

	r.Unregister(43)
	assert.ElementsMatch(t, []int64{42}, r.Snapshot())
}

func TestStale(t *testing.T) {
	r := New(zerolog.Nop())
	fresh := newConn(42, "alice")
	quiet := newConn(43, "bob")
	r.Register(fresh)
	r.Register(quiet)

	time.Sleep(10 * time.Millisecond)
	fresh.Touch()

	stale := r.Stale(time.Now().Add(-5 * time.Millisecond))
	require.Len(t, stale, 1)
	assert.Equal(t, int64(43), stale[0].UserID)
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.Register(newConn(id, "u"))
			r.Snapshot()
			r.Unregister(id)
			r.Unregister(id)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	c := newConn(42, "alice")
	assert.True(t, c.Enqueue([]byte(`{"a":1}`)))

	c.Close()
	assert.False(t, c.Enqueue([]byte(`{"a":2}`)))
}

func TestWritePumpDeliversInOrder(t *testing.T) {
	transport := &stubConn{}
	c := NewConnection(42, "alice", nil, transport)

	require.True(t, c.Enqueue([]byte(`{"n":1}`)))
	require.True(t, c.Enqueue([]byte(`{"n":2}`)))
	require.True(t, c.Enqueue([]byte(`{"n":3}`)))

	go c.WritePump(time.Second)
	time.Sleep(50 * time.Millisecond)
	c.Close()

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.written, 3)
	assert.JSONEq(t, `{"n":1}`, string(transport.written[0]))
	assert.JSONEq(t, `{"n":2}`, string(transport.written[1]))
	assert.JSONEq(t, `{"n":3}`, string(transport.written[2]))
}

func TestSenderNamePrefersDisplayName(t *testing.T) {
	display := "Alice Example"
	c := NewConnection(42, "alice", &display, &stubConn{})
	assert.Equal(t, "Alice Example", c.SenderName())

	noDisplay := NewConnection(43, "bob", nil, &stubConn{})
	assert.Equal(t, "bob", noDisplay.SenderName())
}

var _ types.Conn = (*stubConn)(nil)
