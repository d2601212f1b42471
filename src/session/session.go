// Package session drives the per-connection lifecycle: handshake
// announcement, inbound frame dispatch, liveness probing, and the closing
// sequence that keeps the registry free of stale entries.
package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/event"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
	"github.com/yamadatarousan/slack-clone/src/types"
)

// State is the session lifecycle phase.
type State int32

// Session states. Transitions only move forward.
const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config tunes the session's timing behavior.
type Config struct {
	// ReadTimeout is how long the read loop waits for a client frame
	// before issuing an immediate liveness probe.
	ReadTimeout time.Duration
	// PingInterval is the period of the session's own probe loop.
	PingInterval time.Duration
	// PingTimeout bounds the write of a single probe.
	PingTimeout time.Duration
	// Staleness is how long the peer may go unheard before a probe tick
	// counts as a failure.
	Staleness time.Duration
	// MaxPingFailures is the number of consecutive soft probe failures
	// tolerated before the connection is treated as dead.
	MaxPingFailures int
	// WriteTimeout bounds each outbound event write.
	WriteTimeout time.Duration
}

// DefaultConfig returns the standard session timing.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		PingTimeout:     10 * time.Second,
		Staleness:       60 * time.Second,
		MaxPingFailures: 3,
		WriteTimeout:    10 * time.Second,
	}
}

// Session owns one client connection from handshake to teardown.
type Session struct {
	conn      *registry.Connection
	transport types.Conn
	registry  *registry.Registry
	router    *router.Router
	cfg       Config
	logger    zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	probeStop chan struct{}
	wg        sync.WaitGroup
}

// New creates a session for an accepted connection. The caller has already
// resolved the user's display identity; a failed handshake never reaches
// this point.
func New(conn *registry.Connection, transport types.Conn, reg *registry.Registry, rt *router.Router, cfg Config, logger zerolog.Logger) *Session {
	return &Session{
		conn:      conn,
		transport: transport,
		registry:  reg,
		router:    rt,
		cfg:       cfg,
		probeStop: make(chan struct{}),
		logger: logger.With().
			Str("component", "session").
			Int64("user_id", conn.UserID).
			Logger(),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug().Str("state", st.String()).Msg("session state")
}

// Run executes the session until the connection closes, fails a liveness
// probe, or sends a malformed frame. It always runs the full closing
// sequence before returning, so the registry never retains a stale entry.
func (s *Session) Run(ctx context.Context) {
	s.connect(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.conn.WritePump(s.cfg.WriteTimeout)
	}()
	go func() {
		defer s.wg.Done()
		s.probeLoop()
	}()

	s.readLoop(ctx)
	s.shutdown()
	s.wg.Wait()
}

// connect registers the connection, announces the arrival to everyone else,
// and replays the current presence snapshot to the new client.
func (s *Session) connect(ctx context.Context) {
	s.setState(StateConnecting)

	s.transport.SetPongHandler(func(string) error {
		s.conn.Touch()
		return s.transport.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	if prev := s.registry.Register(s.conn); prev != nil {
		// A newer connection supersedes the old one; closing its
		// transport lets the old session run its own teardown.
		s.logger.Info().Msg("superseding previous connection")
		prev.Close()
	}

	s.router.BroadcastExcept(ctx, event.NewUserConnected(s.conn.UserID, s.conn.Username, s.conn.DisplayName), s.conn.UserID)

	// Presence replay: one synthesized user_connected per already-online
	// peer, so the new client can build its presence view without a query.
	// Two clients connecting at the same moment can each see the other both
	// here and in the live announcement; clients key presence by user id,
	// so the duplicate is absorbed.
	for _, peer := range s.registry.Connections() {
		if peer.UserID == s.conn.UserID {
			continue
		}
		s.router.SendTo(s.conn.UserID, event.NewUserConnected(peer.UserID, peer.Username, peer.DisplayName))
	}

	s.setState(StateActive)
}

// readLoop processes inbound frames in arrival order. A timeout with no
// frame triggers an immediate probe; the peer answers with either a frame or
// a pong. Only a peer silent through the whole probe window is treated as
// dead.
func (s *Session) readLoop(ctx context.Context) {
	var probeAt time.Time

	for {
		wait := s.cfg.ReadTimeout
		if !probeAt.IsZero() {
			wait = s.cfg.PingTimeout
		}
		if err := s.transport.SetReadDeadline(time.Now().Add(wait)); err != nil {
			s.logger.Debug().Err(err).Msg("read deadline failed")
			return
		}

		var frame types.Frame
		err := s.transport.ReadJSON(&frame)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if !probeAt.IsZero() {
					// A pong answers a probe through the pong handler,
					// which only refreshes last-seen. Count that as life.
					if !s.conn.LastSeen().Before(probeAt) {
						probeAt = time.Time{}
						continue
					}
					s.logger.Info().Msg("no response to liveness probe")
					return
				}
				probeAt = time.Now()
				if perr := s.transport.Ping(time.Now().Add(s.cfg.PingTimeout)); perr != nil {
					s.logger.Info().Err(perr).Msg("liveness probe failed")
					return
				}
				continue
			}
			// Close or malformed frame. Either way the session ends
			// through the same closing sequence.
			s.logger.Info().Err(err).Msg("read loop ended")
			return
		}

		probeAt = time.Time{}
		s.conn.Touch()
		s.dispatch(ctx, frame)
	}
}

// dispatch routes one inbound frame. Unrecognized kinds are ignored.
func (s *Session) dispatch(ctx context.Context, frame types.Frame) {
	switch frame.Type {
	case types.FrameMessage:
		ev := event.NewMessagePosted(s.conn.UserID, frame.ChannelID, frame.Content, s.conn.SenderName())
		s.router.Broadcast(ctx, ev)
	case types.FrameTyping:
		ev := event.NewTypingChanged(s.conn.UserID, frame.ChannelID, frame.IsTyping, s.conn.SenderName())
		s.router.Broadcast(ctx, ev)
	default:
		s.logger.Debug().Str("type", frame.Type).Msg("ignoring unrecognized frame")
	}
}

// probeLoop pings the peer on a fixed interval, independent of the global
// sweep. A hard write failure or MaxPingFailures consecutive silent
// intervals forces the session closed.
func (s *Session) probeLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.probeStop:
			return
		case <-s.conn.Done():
			return
		case <-ticker.C:
			if time.Since(s.conn.LastSeen()) > s.cfg.Staleness {
				failures++
			} else {
				failures = 0
			}

			if err := s.conn.Ping(time.Now().Add(s.cfg.PingTimeout)); err != nil {
				s.logger.Info().Err(err).Msg("probe write failed, closing")
				s.shutdown()
				return
			}
			if failures >= s.cfg.MaxPingFailures {
				s.logger.Info().Int("failures", failures).Msg("peer unresponsive, closing")
				s.shutdown()
				return
			}
		}
	}
}

// shutdown runs the closing sequence exactly once: unregister, announce the
// departure, stop the probe loop, release the transport. A session whose
// registry entry was superseded by a newer connection skips the departure
// announcement, because the user is still online.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)

		dropped := s.registry.Drop(s.conn)
		close(s.probeStop)
		s.conn.Close()

		if dropped {
			s.router.BroadcastExcept(context.Background(),
				event.NewUserDisconnected(s.conn.UserID, s.conn.Username, s.conn.DisplayName),
				s.conn.UserID)
		}

		s.setState(StateClosed)
	})
}
