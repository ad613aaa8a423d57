package service

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/protocol"
)

// disconnectWriteTimeout bounds the farewell write during teardown. A peer
// that stopped reading gets the socket closed instead of the reason.
const disconnectWriteTimeout = 250 * time.Millisecond

// sessionState is the protocol state of one connection.
type sessionState int32

const (
	StateHandshake sessionState = iota
	StateStatus
	StateLogin
	StatePlay
	StateDisconnected
)

func (s sessionState) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StatePlay:
		return "play"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session owns one network connection: its protocol state, its outbound
// queue and the dispatch of its inbound messages. Teardown happens exactly
// once, no matter which goroutine triggers it.
type Session struct {
	id     int32
	srv    *Server
	conn   net.Conn
	codec  protocol.Codec
	logger *zap.SugaredLogger

	state atomic.Int32
	queue chan protocol.Message
	done  chan struct{}

	// writeMu serializes the writer goroutine and SendImmediate callers on
	// the socket.
	writeMu sync.Mutex

	closeOnce sync.Once

	// playerMu guards player, which is set once during login.
	playerMu sync.Mutex
	player   *playermanager.Player

	lastKeepAlive atomic.Int64
}

func newSession(srv *Server, conn net.Conn) *Session {
	id := srv.nextSessionID.Add(1)
	s := &Session{
		id:     id,
		srv:    srv,
		conn:   conn,
		codec:  srv.codec,
		logger: srv.logger.With("session", id, "remote", conn.RemoteAddr().String()),
		queue:  make(chan protocol.Message, sendQueueSize),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateHandshake))
	return s
}

// State returns the current protocol state.
func (s *Session) State() sessionState {
	return sessionState(s.state.Load())
}

func (s *Session) setState(st sessionState) {
	s.state.Store(int32(st))
}

// Player returns the authenticated player, or nil before login completes.
func (s *Session) Player() *playermanager.Player {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()
	return s.player
}

func (s *Session) setPlayer(p *playermanager.Player) {
	s.playerMu.Lock()
	defer s.playerMu.Unlock()
	s.player = p
}

// EntityID is the session-scoped id used in spawn messages.
func (s *Session) EntityID() int32 { return s.id }

// Enqueue appends a message to the outbound FIFO. It never blocks: when the
// queue is full the message is dropped and logged.
func (s *Session) Enqueue(msg protocol.Message) {
	if s.State() == StateDisconnected {
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.logger.Warnw("outbound queue full, dropping message", "id", msg.ID())
	}
}

// SendImmediate writes a message to the socket, bypassing the queue.
func (s *Session) SendImmediate(msg protocol.Message) error {
	if s.State() == StateDisconnected {
		return net.ErrClosed
	}
	return s.write(msg)
}

func (s *Session) write(msg protocol.Message) error {
	body, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, msg.ID(), body)
}

// run reads and dispatches inbound messages until the session disconnects.
// It is the only goroutine that advances the protocol state machine.
func (s *Session) run(ctx context.Context) {
	go s.writeLoop()
	defer s.Disconnect("")

	br := bufio.NewReader(s.conn)
	for {
		id, body, err := protocol.ReadFrame(br)
		if err != nil {
			var perr *protocol.Error
			switch {
			case errors.As(err, &perr):
				s.logger.Warnw("malformed frame", "state", s.State(), "error", err)
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				s.logger.Debugw("connection closed", "state", s.State())
			default:
				// Transport failures are routine; log low.
				s.logger.Debugw("transport failure", "state", s.State(), "error", err)
			}
			return
		}

		msg, err := s.codec.Decode(id, body)
		if errors.Is(err, protocol.ErrUnknownMessage) {
			s.logger.Debugw("ignoring unknown message", "id", id, "state", s.State())
			continue
		}
		if err != nil {
			s.logger.Warnw("undecodable message", "id", id, "error", err)
			s.Disconnect("malformed message")
			return
		}

		if err := s.srv.dispatch(ctx, s, msg); err != nil {
			s.logger.Warnw("protocol violation", "id", id, "state", s.State(), "error", err)
			s.Disconnect("protocol violation")
			return
		}

		if s.State() == StateDisconnected {
			return
		}
	}
}

// writeLoop drains the outbound queue onto the socket. A write failure is a
// transport failure for the whole session.
func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.queue:
			if err := s.write(msg); err != nil {
				s.logger.Debugw("outbound write failed", "error", err)
				s.Disconnect("")
				return
			}
		case <-s.done:
			return
		}
	}
}

// Disconnect forces the terminal transition. The outbound queue is
// discarded, the session leaves every collection referencing it, and exactly
// one leave notification fires if the session had reached Play. Safe to call
// from any goroutine, any number of times.
func (s *Session) Disconnect(reason string) {
	s.closeOnce.Do(func() {
		prev := sessionState(s.state.Swap(int32(StateDisconnected)))

		if reason != "" {
			// Best effort; the transport may already be gone. The deadline
			// also aborts a writer stalled on this socket, so the farewell
			// can never wait forever for the write mutex.
			_ = s.conn.SetWriteDeadline(time.Now().Add(disconnectWriteTimeout))
			_ = s.write(&protocol.Disconnect{Reason: reason})
		}
		s.conn.Close()
		close(s.done)

		s.srv.removeSession(s)

		if prev == StatePlay {
			if p := s.Player(); p != nil {
				s.srv.handlePlayerQuit(p)
			}
		}

		s.logger.Infow("session closed", "previous_state", prev, "reason", reason)
	})
}
