package service

import (
	"context"
	"expvar"

	"github.com/annelo/go-game-server/internal/protocol"
)

// runLoop is the tick scheduler: a single cooperative loop that drives tick
// subscribers and game systems, issues keep-alives, drains pending world
// events and prunes dead sessions. Nothing else may re-enter it.
//
// The loop self-paces: it sleeps only the remainder of the 50 ms budget, and
// when a cycle overruns, the next one starts immediately. Overrun cycles are
// never compensated with catch-up ticks; only monotonic forward progress is
// guaranteed.
func (s *Server) runLoop(ctx context.Context) {
	defer s.wg.Done()

	keepAliveTicks := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tick loop stopped")
			return
		default:
		}

		start := s.clock.Now()
		tick := s.totalTicks.Add(1)
		expvar.Get("total_ticks").(*expvar.Int).Add(1)

		s.bus.PublishTick(ctx, tick)
		s.runSystems(ctx, tick)

		keepAliveTicks++
		if keepAliveTicks >= keepAliveEvery {
			keepAliveTicks = 0
			s.probeKeepAlives()
		}

		s.drainPendingEvents()
		s.pruneSessions()

		if remaining := tickInterval - s.clock.Since(start); remaining > 0 {
			select {
			case <-s.clock.After(remaining):
			case <-ctx.Done():
				s.logger.Info("tick loop stopped")
				return
			}
		}
	}
}

// runSystems ticks every registered game system. A panicking system is
// contained and logged; it cannot abort the cycle.
func (s *Server) runSystems(ctx context.Context, tick int64) {
	for _, sys := range s.registry.GameSystems() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Errorw("panic in game system", "system", sys.Name(), "panic", r)
				}
			}()
			sys.Tick(ctx, tick)
		}()
	}
}

// probeKeepAlives sends a liveness token to every Play-state session. Each
// probe runs in its own goroutine so one unresponsive session cannot delay
// the others; failures surface as a logged disconnect, never silently.
func (s *Server) probeKeepAlives() {
	token := s.clock.Now().UnixMilli()

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.State() == StatePlay {
			sessions = append(sessions, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		// Record the token before the probe goroutine runs, so a reply
		// arriving mid-round is compared against this round's token.
		sess.lastKeepAlive.Store(token)
		go func(sess *Session) {
			if err := sess.SendImmediate(&protocol.KeepAlive{Token: token}); err != nil {
				s.logger.Debugw("keep-alive probe failed", "session", sess.id, "error", err)
				sess.Disconnect("")
			}
		}(sess)
	}
}

// drainPendingEvents takes at most one item from each pending queue and fans
// it out. One representative per tick is a deliberate throttle; the
// remainder drains on subsequent ticks.
func (s *Server) drainPendingEvents() {
	select {
	case chat := <-s.chatQueue:
		s.BroadcastPacket(&protocol.ChatBroadcast{Text: chat.Text, Channel: chat.Channel})
	default:
	}

	select {
	case dig := <-s.digQueue:
		s.BroadcastPacket(&protocol.BlockChange{Location: dig.Location, BlockType: protocol.BlockTypeAir})
	default:
	}

	select {
	case placed := <-s.placeQueue:
		change := &protocol.BlockChange{
			Location:  placed.Placement.Location.Offset(placed.Placement.Face),
			BlockType: placed.Placement.HeldItem,
		}
		// The placer already sees the block locally.
		if placer, err := s.players.GetPlayer(placed.Placer); err == nil {
			s.BroadcastPacket(change, placer)
		} else {
			s.BroadcastPacket(change)
		}
	default:
	}
}

// pruneSessions removes sessions whose transport already failed, without
// waiting for their read goroutine to notice.
func (s *Server) pruneSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.State() == StateDisconnected {
			delete(s.sessions, id)
		}
	}
}
