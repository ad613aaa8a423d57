// Package service is the server core: connection lifecycle, the shared
// player registry, and the tick-driven broadcast scheduler.
package service

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/annelo/go-game-server/internal/config"
	"github.com/annelo/go-game-server/internal/eventbus"
	"github.com/annelo/go-game-server/internal/gameloop"
	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/plugin"
	"github.com/annelo/go-game-server/internal/protocol"
	"github.com/annelo/go-game-server/internal/storage"
	"github.com/annelo/go-game-server/internal/world"
)

const (
	serverVersion = "0.4.1"

	// tickInterval is the simulation period: 20 ticks per second.
	tickInterval = 50 * time.Millisecond
	// keepAliveEvery is how many ticks pass between keep-alive rounds.
	keepAliveEvery = 50

	// sendQueueSize is the maximum number of messages in the outbound
	// queue per session.
	sendQueueSize = 1024
	// pendingQueueSize bounds each pending world-event queue.
	pendingQueueSize = 1024
)

// queuedChat is a chat-class world event awaiting its tick.
type queuedChat struct {
	Text    string
	Channel protocol.ChatChannel
}

// queuedPlacement is a block placement awaiting its tick.
type queuedPlacement struct {
	Placer    uuid.UUID
	Placement *protocol.BlockPlacement
}

// Server is the composition root: it owns the listener, the sessions, the
// registry, the event bus and the tick scheduler.
type Server struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	clock  clockwork.Clock

	players  *playermanager.PlayerManager
	bus      *eventbus.Bus
	world    *world.World
	registry plugin.Registry
	storage  storage.PlayerStorage
	ops      *storage.OperatorList

	codec    protocol.Codec
	handlers map[protocol.MessageID]handlerEntry

	mu            sync.RWMutex
	sessions      map[int32]*Session
	nextSessionID atomic.Int32

	chatQueue  chan queuedChat
	digQueue   chan *protocol.PlayerDigging
	placeQueue chan queuedPlacement

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sessWg   sync.WaitGroup
	running  atomic.Bool

	totalTicks atomic.Int64
	startTime  time.Time
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock substitutes the clock driving the tick scheduler.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithStorage enables player-state persistence.
func WithStorage(st storage.PlayerStorage) Option {
	return func(s *Server) { s.storage = st }
}

// WithOperators sets the operator list gating privileged commands.
func WithOperators(ops *storage.OperatorList) Option {
	return func(s *Server) { s.ops = ops }
}

// WithCodec replaces the default codec.
func WithCodec(codec protocol.Codec) Option {
	return func(s *Server) { s.codec = codec }
}

// NewServer creates a server for the given configuration and plugin
// registry. Nothing runs until StartServer.
func NewServer(cfg *config.Config, reg plugin.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     zap.NewNop().Sugar(),
		clock:      clockwork.NewRealClock(),
		players:    playermanager.NewPlayerManager(),
		registry:   reg,
		codec:      protocol.NewJSONCodec(),
		sessions:   make(map[int32]*Session),
		chatQueue:  make(chan queuedChat, pendingQueueSize),
		digQueue:   make(chan *protocol.PlayerDigging, pendingQueueSize),
		placeQueue: make(chan queuedPlacement, pendingQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bus = eventbus.NewBus(s.logger)
	s.world = world.NewWorld(s.selectGenerator(), s.logger)

	s.registerCoreHandlers()
	s.registerCoreSubscriptions()
	s.registerCoreCommands()
	return s
}

// selectGenerator resolves the configured world generator, falling back to
// superflat with a warning when the name is unknown.
func (s *Server) selectGenerator() world.Generator {
	generators := map[string]world.Generator{
		"superflat": world.NewSuperflatGenerator(),
		"overworld": world.NewNoiseGenerator(s.cfg.Seed),
	}
	if gen, ok := generators[s.cfg.Generator]; ok {
		return gen
	}
	s.logger.Warnf("generator %q is unknown, using superflat", s.cfg.Generator)
	return generators["superflat"]
}

// StartServer validates the configuration, opens the listening socket and
// starts the accept loop and the tick scheduler. It fails if the server is
// already running.
func (s *Server) StartServer(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := s.cfg.Validate(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln
	s.startTime = s.clock.Now()

	ctx, s.cancel = context.WithCancel(ctx)

	deps := gameloop.Dependencies{
		Players: s.players,
		World:   s.world,
		Broadcast: func(text string, channel protocol.ChatChannel) {
			if err := s.BroadcastAsync(text, channel); err != nil {
				s.logger.Warnw("system broadcast dropped", "error", err)
			}
		},
	}
	for _, sys := range s.registry.GameSystems() {
		if err := sys.Init(deps); err != nil {
			s.logger.Errorw("game system init failed", "system", sys.Name(), "error", err)
		}
	}

	if !s.cfg.OnlineMode {
		s.logger.Info("starting in offline mode")
	}

	s.wg.Add(2)
	go s.acceptLoop(ctx, ln)
	go s.runLoop(ctx)

	s.logger.Infof("server v%s listening on port %d (generator %s)", serverVersion, s.cfg.Port, s.world.GeneratorID())
	return nil
}

// acceptLoop accepts connections until the listener closes. Each connection
// gets its own session goroutine; the loop itself never waits on one
// connection's lifetime.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				s.logger.Debugw("accept loop terminated", "error", err)
			}
			return
		}
		s.logger.Debugw("new connection", "remote", conn.RemoteAddr().String())

		expvar.Get("sessions_accepted").(*expvar.Int).Add(1)

		sess := newSession(s, conn)
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()

		s.sessWg.Add(1)
		go func() {
			defer s.sessWg.Done()
			sess.run(ctx)
		}()
	}
}

// StopServer signals shutdown, disconnects every session and returns only
// after the accept loop, the tick loop and all session goroutines have
// exited. Stopping a stopped server is a no-op.
func (s *Server) StopServer() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info("shutdown requested, stopping server")

	s.cancel()
	s.listener.Close()
	s.disconnectAll("Server is shutting down")

	s.wg.Wait()
	// A connection accepted in the instant the listener closed may have
	// registered after the first sweep's snapshot. The accept loop has
	// drained now, so a second sweep catches any such straggler.
	s.disconnectAll("Server is shutting down")
	s.sessWg.Wait()

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Warnw("storage close failed", "error", err)
		}
	}
	s.logger.Info("server stopped")
}

// disconnectAll forces every live session to its terminal state. Outbound
// queues are not flushed.
func (s *Server) disconnectAll(reason string) {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.Disconnect(reason)
	}
	s.logger.Infof("disconnected %d sessions", len(sessions))
}

// removeSession drops the session from the live-connection set.
func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// handlePlayerQuit finishes teardown for a session that had reached Play:
// registry removal, leave notification, state persistence.
func (s *Server) handlePlayerQuit(p *playermanager.Player) {
	s.players.RemovePlayer(p.ID)
	expvar.Get("players_connected").(*expvar.Int).Add(-1)

	s.bus.PublishLeave(context.Background(), p)

	if s.storage != nil {
		err := s.storage.SavePlayerState(context.Background(), &storage.PlayerState{
			ID:       p.ID,
			Username: p.Username,
			Position: p.Position,
			HeldItem: p.HeldItem,
			LastSeen: s.clock.Now().Unix(),
		})
		if err != nil {
			s.logger.Warnw("saving player state failed", "player", p.Username, "error", err)
		}
	}
}

// registerCoreSubscriptions wires the join/leave orchestration: announce,
// exchange player-list entries and spawn representations symmetrically.
func (s *Server) registerCoreSubscriptions() {
	s.bus.SubscribeJoin(func(ctx context.Context, p *playermanager.Player) error {
		if err := s.BroadcastAsync(fmt.Sprintf(s.cfg.JoinMessage, p.Username), protocol.ChannelSystem); err != nil {
			s.logger.Warnw("join announcement dropped", "error", err)
		}
		for _, other := range s.players.GetAllPlayers() {
			if other.ID == p.ID {
				continue
			}
			other.Conn.Enqueue(&protocol.PlayerListAdd{PlayerID: p.ID, Username: p.Username})
			p.Conn.Enqueue(&protocol.PlayerListAdd{PlayerID: other.ID, Username: other.Username})

			other.Conn.Enqueue(&protocol.SpawnPlayer{
				EntityID: p.Conn.EntityID(),
				PlayerID: p.ID,
				Username: p.Username,
				Position: p.Position,
			})
			p.Conn.Enqueue(&protocol.SpawnPlayer{
				EntityID: other.Conn.EntityID(),
				PlayerID: other.ID,
				Username: other.Username,
				Position: other.Position,
			})
		}
		return nil
	})

	s.bus.SubscribeLeave(func(ctx context.Context, p *playermanager.Player) error {
		for _, other := range s.players.GetAllPlayers() {
			if other.ID == p.ID {
				continue
			}
			other.Conn.Enqueue(&protocol.PlayerListRemove{PlayerID: p.ID})
		}
		if err := s.BroadcastAsync(fmt.Sprintf(s.cfg.LeaveMessage, p.Username), protocol.ChannelSystem); err != nil {
			s.logger.Warnw("leave announcement dropped", "error", err)
		}
		return nil
	})
}

// OnPlayerJoin registers a collaborator handler for player join events.
func (s *Server) OnPlayerJoin(h eventbus.PlayerHandler) { s.bus.SubscribeJoin(h) }

// OnPlayerLeave registers a collaborator handler for player leave events.
func (s *Server) OnPlayerLeave(h eventbus.PlayerHandler) { s.bus.SubscribeLeave(h) }

// OnTick registers a collaborator handler invoked every tick.
func (s *Server) OnTick(h eventbus.TickHandler) { s.bus.SubscribeTick(h) }

// IsPlayerOnline reports whether a player with the given username is online.
func (s *Server) IsPlayerOnline(username string) bool {
	_, ok := s.players.FindByUsername(username)
	return ok
}

// IsPlayerOnlineID reports whether the identity is online.
func (s *Server) IsPlayerOnlineID(id uuid.UUID) bool {
	_, err := s.players.GetPlayer(id)
	return err == nil
}

// DisconnectIfConnected forces an online player's session to Disconnected.
func (s *Server) DisconnectIfConnected(username, reason string) {
	player, ok := s.players.FindByUsername(username)
	if !ok {
		return
	}
	if reason == "" {
		reason = "Connected from another location"
	}
	player.Conn.Disconnect(reason)
}

// Addr returns the listening address, or nil before StartServer.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// TotalTicks returns the number of completed scheduler cycles.
func (s *Server) TotalTicks() int64 {
	return s.totalTicks.Load()
}

// Players exposes the registry to collaborators (plugins, commands).
func (s *Server) Players() *playermanager.PlayerManager { return s.players }

// World exposes the terrain collaborator.
func (s *Server) World() *world.World { return s.world }

func init() {
	// Counters may already exist when several servers run in one process
	// (tests).
	ensureCounter := func(name string) {
		if expvar.Get(name) == nil {
			expvar.NewInt(name)
		}
	}
	ensureCounter("players_connected")
	ensureCounter("sessions_accepted")
	ensureCounter("total_ticks")
}
