package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-game-server/internal/config"
	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/plugin"
	"github.com/annelo/go-game-server/internal/protocol"
)

// recordConn captures everything enqueued towards one player.
type recordConn struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (c *recordConn) Enqueue(msg protocol.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *recordConn) SendImmediate(msg protocol.Message) error {
	c.Enqueue(msg)
	return nil
}

func (c *recordConn) Disconnect(string) {}
func (c *recordConn) EntityID() int32   { return 0 }

func (c *recordConn) recorded() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.msgs...)
}

func (c *recordConn) chats() []*protocol.ChatBroadcast {
	var out []*protocol.ChatBroadcast
	for _, m := range c.recorded() {
		if cb, ok := m.(*protocol.ChatBroadcast); ok {
			out = append(out, cb)
		}
	}
	return out
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 0
	return NewServer(cfg, plugin.NewDefaultRegistry(), opts...)
}

func addTestPlayer(t *testing.T, s *Server, name string) (*playermanager.Player, *recordConn) {
	t.Helper()
	conn := &recordConn{}
	p := &playermanager.Player{ID: uuid.New(), Username: name, Conn: conn}
	require.NoError(t, s.players.AddPlayer(p))
	return p, conn
}

func TestDrainPendingEvents_OneChatPerTick(t *testing.T) {
	s := newTestServer(t)
	_, alice := addTestPlayer(t, s, "Alice")
	_, bob := addTestPlayer(t, s, "Bob")

	// A burst of 51 chat lines may not flood a single cycle: each cycle
	// delivers exactly one, and the backlog drains across later cycles.
	const burst = 51
	for i := 0; i < burst; i++ {
		require.NoError(t, s.BroadcastAsync("hello", protocol.ChannelChat))
	}

	s.drainPendingEvents()
	assert.Len(t, alice.chats(), 1)
	assert.Len(t, bob.chats(), 1)

	for i := 1; i < burst; i++ {
		s.drainPendingEvents()
	}
	assert.Len(t, alice.chats(), burst)
	assert.Len(t, bob.chats(), burst)

	// The queue is empty now; further cycles deliver nothing.
	s.drainPendingEvents()
	assert.Len(t, alice.chats(), burst)
}

func TestBroadcastAsync_QueueFull(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < pendingQueueSize; i++ {
		require.NoError(t, s.BroadcastAsync("x", protocol.ChannelChat))
	}
	assert.ErrorIs(t, s.BroadcastAsync("overflow", protocol.ChannelChat), ErrChatQueueFull)
}

func TestDrainPendingEvents_Digging(t *testing.T) {
	s := newTestServer(t)
	_, alice := addTestPlayer(t, s, "Alice")

	loc := protocol.BlockLocation{X: 3, Y: 4, Z: 5}
	s.digQueue <- &protocol.PlayerDigging{Location: loc}
	s.drainPendingEvents()

	msgs := alice.recorded()
	require.Len(t, msgs, 1)
	change := msgs[0].(*protocol.BlockChange)
	assert.Equal(t, loc, change.Location)
	assert.Equal(t, protocol.BlockTypeAir, change.BlockType)
}

func TestDrainPendingEvents_PlacementExcludesPlacer(t *testing.T) {
	s := newTestServer(t)
	placer, placerConn := addTestPlayer(t, s, "Placer")
	_, other := addTestPlayer(t, s, "Other")

	s.placeQueue <- queuedPlacement{
		Placer: placer.ID,
		Placement: &protocol.BlockPlacement{
			Location: protocol.BlockLocation{X: 0, Y: 4, Z: 0},
			Face:     protocol.FaceTop,
			HeldItem: 7,
		},
	}
	s.drainPendingEvents()

	assert.Empty(t, placerConn.recorded(), "the placer already sees the block locally")

	msgs := other.recorded()
	require.Len(t, msgs, 1)
	change := msgs[0].(*protocol.BlockChange)
	assert.Equal(t, protocol.BlockLocation{X: 0, Y: 5, Z: 0}, change.Location, "block lands on the placed face")
	assert.Equal(t, int32(7), change.BlockType)
}

func TestBroadcastPacket_Exclusion(t *testing.T) {
	s := newTestServer(t)
	mover, moverConn := addTestPlayer(t, s, "Mover")
	_, watcher := addTestPlayer(t, s, "Watcher")

	s.BroadcastPacket(&protocol.PlayerMoved{PlayerID: mover.ID}, mover)

	assert.Empty(t, moverConn.recorded())
	assert.Len(t, watcher.recorded(), 1)
}

// failConn refuses immediate sends, as a session with a dead transport does.
type failConn struct {
	recordConn
}

func (c *failConn) SendImmediate(protocol.Message) error { return net.ErrClosed }

func TestBroadcastPacketImmediate_Exclusion(t *testing.T) {
	s := newTestServer(t)
	excluded, excludedConn := addTestPlayer(t, s, "Excluded")
	_, watcher := addTestPlayer(t, s, "Watcher")

	// A session whose transport already failed is logged and skipped; it
	// must not stop the fanout.
	dead := &failConn{}
	p := &playermanager.Player{ID: uuid.New(), Username: "Dead", Conn: dead}
	require.NoError(t, s.players.AddPlayer(p))

	s.BroadcastPacketImmediate(&protocol.KeepAlive{Token: 1}, excluded)

	assert.Empty(t, excludedConn.recorded())
	assert.Empty(t, dead.recorded())
	assert.Len(t, watcher.recorded(), 1)
}

func TestPruneSessions(t *testing.T) {
	s := newTestServer(t)

	server1, client1 := net.Pipe()
	defer client1.Close()
	server2, client2 := net.Pipe()
	defer client2.Close()

	live := newSession(s, server1)
	dead := newSession(s, server2)
	dead.setState(StateDisconnected)

	s.mu.Lock()
	s.sessions[live.id] = live
	s.sessions[dead.id] = dead
	s.mu.Unlock()

	s.pruneSessions()

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Contains(t, s.sessions, live.id)
	assert.NotContains(t, s.sessions, dead.id)
}

func TestProbeKeepAlives(t *testing.T) {
	s := newTestServer(t)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	sess := newSession(s, serverEnd)
	sess.setState(StatePlay)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.probeKeepAlives()

	// The token is recorded before the probe goroutines run, so a reply
	// arriving mid-round is checked against the current round.
	assert.NotZero(t, sess.lastKeepAlive.Load())

	// The probe goroutine writes one keep-alive frame.
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	id, body, err := protocol.ReadFrame(newByteReader(clientEnd))
	require.NoError(t, err)
	require.Equal(t, protocol.IDKeepAlive, id)

	msg, err := s.codec.Decode(id, body)
	require.NoError(t, err)
	ka := msg.(*protocol.KeepAlive)
	assert.Equal(t, sess.lastKeepAlive.Load(), ka.Token, "the session remembers the issued token")
}

func TestRunLoop_FakeClockPacing(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := newTestServer(t, WithClock(fc))

	ticked := make(chan int64, 16)
	s.OnTick(func(ctx context.Context, tick int64) error {
		ticked <- tick
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.runLoop(ctx)

	for want := int64(1); want <= 3; want++ {
		select {
		case tick := <-ticked:
			assert.Equal(t, want, tick, "ticks are numbered monotonically")
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d never fired", want)
		}
		// The loop sleeps the rest of its budget; release it.
		fc.BlockUntil(1)
		fc.Advance(tickInterval)
	}

	cancel()
	s.wg.Wait()
	assert.GreaterOrEqual(t, s.TotalTicks(), int64(3))
}

func TestDispatch_RejectsMessageInWrongState(t *testing.T) {
	s := newTestServer(t)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	defer serverEnd.Close()
	sess := newSession(s, serverEnd)

	// Chat is only valid in Play; the session is still in Handshake.
	err := s.dispatch(context.Background(), sess, &protocol.Chat{Text: "hi"})
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.IDChat, perr.MessageID)
}

func TestDispatch_UnknownMessageIsIgnored(t *testing.T) {
	s := newTestServer(t)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	defer serverEnd.Close()
	sess := newSession(s, serverEnd)

	delete(s.handlers, protocol.IDChat)
	assert.NoError(t, s.dispatch(context.Background(), sess, &protocol.Chat{Text: "hi"}))
}

func TestHandleHandshake_Transitions(t *testing.T) {
	s := newTestServer(t)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	defer serverEnd.Close()

	sess := newSession(s, serverEnd)
	require.NoError(t, s.handleHandshake(context.Background(), sess, &protocol.Handshake{NextState: protocol.NextStatus}))
	assert.Equal(t, StateStatus, sess.State())

	sess = newSession(s, serverEnd)
	require.NoError(t, s.handleHandshake(context.Background(), sess, &protocol.Handshake{NextState: protocol.NextLogin}))
	assert.Equal(t, StateLogin, sess.State())

	sess = newSession(s, serverEnd)
	assert.Error(t, s.handleHandshake(context.Background(), sess, &protocol.Handshake{NextState: 9}))
}

// newByteReader adapts a net.Conn for frame reading in tests.
func newByteReader(c net.Conn) *connByteReader { return &connByteReader{c: c} }

type connByteReader struct {
	c   net.Conn
	buf [1]byte
}

func (r *connByteReader) ReadByte() (byte, error) {
	if _, err := r.c.Read(r.buf[:]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}
