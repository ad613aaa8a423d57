package service

import (
	"context"
	"errors"
	"expvar"
	"fmt"

	"github.com/google/uuid"

	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/plugin"
	"github.com/annelo/go-game-server/internal/protocol"
	"github.com/annelo/go-game-server/internal/storage"
)

// HandlerFunc processes one inbound message for a session. A returned error
// is a protocol violation and disconnects the session.
type HandlerFunc func(ctx context.Context, sess *Session, msg protocol.Message) error

type handlerEntry struct {
	fn     HandlerFunc
	states map[sessionState]bool
}

// RegisterHandler installs a handler for a message identifier, valid in the
// given states. The protocol-layer collaborator populates the table before
// StartServer; registration is not safe once the server is running.
func (s *Server) RegisterHandler(id protocol.MessageID, fn HandlerFunc, states ...sessionState) {
	entry := handlerEntry{fn: fn, states: make(map[sessionState]bool, len(states))}
	for _, st := range states {
		entry.states[st] = true
	}
	s.handlers[id] = entry
}

// dispatch routes a decoded message to its handler. Unknown identifiers are
// logged and ignored; a message invalid for the session's current state is a
// protocol violation.
func (s *Server) dispatch(ctx context.Context, sess *Session, msg protocol.Message) error {
	entry, ok := s.handlers[msg.ID()]
	if !ok {
		s.logger.Debugw("no handler for message", "id", msg.ID(), "state", sess.State())
		return nil
	}
	if !entry.states[sess.State()] {
		return &protocol.Error{
			MessageID: msg.ID(),
			Reason:    fmt.Sprintf("not valid in state %s", sess.State()),
		}
	}
	return entry.fn(ctx, sess, msg)
}

func (s *Server) registerCoreHandlers() {
	s.handlers = make(map[protocol.MessageID]handlerEntry)
	s.RegisterHandler(protocol.IDHandshake, s.handleHandshake, StateHandshake)
	s.RegisterHandler(protocol.IDStatusRequest, s.handleStatusRequest, StateStatus)
	s.RegisterHandler(protocol.IDPing, s.handlePing, StateStatus)
	s.RegisterHandler(protocol.IDLoginStart, s.handleLoginStart, StateLogin)
	s.RegisterHandler(protocol.IDKeepAliveReply, s.handleKeepAliveReply, StatePlay)
	s.RegisterHandler(protocol.IDChat, s.handleChat, StatePlay)
	s.RegisterHandler(protocol.IDPlayerPosition, s.handlePlayerPosition, StatePlay)
	s.RegisterHandler(protocol.IDPlayerDigging, s.handlePlayerDigging, StatePlay)
	s.RegisterHandler(protocol.IDBlockPlacement, s.handleBlockPlacement, StatePlay)
}

func (s *Server) handleHandshake(ctx context.Context, sess *Session, msg protocol.Message) error {
	hs := msg.(*protocol.Handshake)
	switch hs.NextState {
	case protocol.NextStatus:
		sess.setState(StateStatus)
	case protocol.NextLogin:
		sess.setState(StateLogin)
	default:
		return &protocol.Error{
			MessageID: msg.ID(),
			Reason:    fmt.Sprintf("unknown next state %d", hs.NextState),
		}
	}
	return nil
}

func (s *Server) handleStatusRequest(ctx context.Context, sess *Session, msg protocol.Message) error {
	return sess.SendImmediate(&protocol.StatusResponse{
		Version:     serverVersion,
		Online:      s.players.Count(),
		Max:         s.cfg.MaxPlayers,
		Description: "A game server",
	})
}

func (s *Server) handlePing(ctx context.Context, sess *Session, msg protocol.Message) error {
	ping := msg.(*protocol.Ping)
	return sess.SendImmediate(&protocol.Pong{Payload: ping.Payload})
}

func (s *Server) handleLoginStart(ctx context.Context, sess *Session, msg protocol.Message) error {
	login := msg.(*protocol.LoginStart)
	if login.Username == "" {
		return &protocol.Error{MessageID: msg.ID(), Reason: "empty username"}
	}

	for _, h := range s.registry.Hooks(plugin.HookBeforeLogin) {
		h(login.Username)
	}

	if s.players.Count() >= s.cfg.MaxPlayers {
		sess.Disconnect("Server is full")
		return nil
	}

	username := login.Username
	var id uuid.UUID
	switch {
	case s.cfg.MultiplayerDebugMode:
		// Debug mode admits the same username repeatedly; give each
		// connection its own identity and a disambiguated name.
		id = uuid.New()
		username = fmt.Sprintf("%s-%d", login.Username, sess.id)
	case s.cfg.OnlineMode:
		// Authentication against an account service is a collaborator
		// concern; the identity derivation is the same either way.
		s.logger.Debugw("online mode login", "username", username)
		id = offlineUUID(username)
	default:
		id = offlineUUID(username)
	}

	player := &playermanager.Player{
		ID:       id,
		Username: username,
		Position: s.world.SpawnPosition(),
		Conn:     sess,
	}

	if s.storage != nil {
		if saved, err := s.storage.LoadPlayerState(ctx, id); err == nil {
			player.Position = saved.Position
			player.HeldItem = saved.HeldItem
		} else if !errors.Is(err, storage.ErrStateNotFound) {
			s.logger.Warnw("loading player state failed", "player", username, "error", err)
		}
	}

	if err := s.players.AddPlayer(player); err != nil {
		// Recoverable registration conflict: the previous session keeps
		// its entry, the new connection is refused.
		s.logger.Warnw("login rejected", "username", username, "error", err)
		sess.Disconnect("You are already connected from another location")
		return nil
	}

	sess.setPlayer(player)
	if !sess.state.CompareAndSwap(int32(StateLogin), int32(StatePlay)) {
		// The session was torn down while logging in; undo the
		// registration so no orphaned entry survives.
		s.players.RemovePlayer(player.ID)
		return nil
	}

	expvar.Get("players_connected").(*expvar.Int).Add(1)
	s.logger.Infof("player %s (%s) joined the game", player.Username, player.ID)

	if err := sess.SendImmediate(&protocol.LoginSuccess{PlayerID: player.ID, Username: player.Username}); err != nil {
		return nil
	}
	s.world.StreamInitialChunks(sess, player.Position)

	s.bus.PublishJoin(ctx, player)

	for _, h := range s.registry.Hooks(plugin.HookAfterLogin) {
		h(player.Username, player.ID)
	}
	return nil
}

func (s *Server) handleKeepAliveReply(ctx context.Context, sess *Session, msg protocol.Message) error {
	reply := msg.(*protocol.KeepAliveReply)
	if expected := sess.lastKeepAlive.Load(); reply.Token != expected {
		s.logger.Debugw("stale keep-alive reply", "session", sess.id, "token", reply.Token, "expected", expected)
	}
	return nil
}

func (s *Server) handleChat(ctx context.Context, sess *Session, msg protocol.Message) error {
	chat := msg.(*protocol.Chat)
	player := sess.Player()
	if player == nil {
		return &protocol.Error{MessageID: msg.ID(), Reason: "chat before login"}
	}

	if isCommand(chat.Text) {
		s.runCommand(player, chat.Text)
		return nil
	}

	if err := s.BroadcastAsync(fmt.Sprintf("<%s> %s", player.Username, chat.Text), protocol.ChannelChat); err != nil {
		s.SendMessage(player, "Chat is congested, try again", protocol.ChannelSystem)
	}
	return nil
}

func (s *Server) handlePlayerPosition(ctx context.Context, sess *Session, msg protocol.Message) error {
	move := msg.(*protocol.PlayerPosition)
	player := sess.Player()
	if player == nil {
		return &protocol.Error{MessageID: msg.ID(), Reason: "movement before login"}
	}

	oldPos := player.Position
	if err := s.players.UpdatePlayerPosition(player.ID, move.Position); err != nil {
		s.logger.Warnw("position update failed", "player", player.Username, "error", err)
		return nil
	}

	s.world.NotifyMoved(sess, oldPos, move.Position)

	// Movers already know where they are.
	s.BroadcastPacket(&protocol.PlayerMoved{PlayerID: player.ID, Position: move.Position}, player)
	return nil
}

func (s *Server) handlePlayerDigging(ctx context.Context, sess *Session, msg protocol.Message) error {
	dig := msg.(*protocol.PlayerDigging)
	select {
	case s.digQueue <- dig:
	default:
		s.logger.Warnw("dig queue full, dropping event", "session", sess.id)
	}
	return nil
}

func (s *Server) handleBlockPlacement(ctx context.Context, sess *Session, msg protocol.Message) error {
	placement := msg.(*protocol.BlockPlacement)
	player := sess.Player()
	if player == nil {
		return &protocol.Error{MessageID: msg.ID(), Reason: "placement before login"}
	}

	if err := s.players.UpdateHeldItem(player.ID, placement.HeldItem); err != nil {
		s.logger.Warnw("held item update failed", "player", player.Username, "error", err)
	}

	select {
	case s.placeQueue <- queuedPlacement{Placer: player.ID, Placement: placement}:
	default:
		s.logger.Warnw("placement queue full, dropping event", "session", sess.id)
	}
	return nil
}

// offlineUUID derives a stable identity from a username.
func offlineUUID(username string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("player:"+username))
}
