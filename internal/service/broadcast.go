package service

import (
	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/protocol"
)

// BroadcastPacket enqueues a message on every online player's session,
// skipping the excluded players. Per-destination FIFO order is preserved;
// delivery is asynchronous.
func (s *Server) BroadcastPacket(msg protocol.Message, excluded ...*playermanager.Player) {
	for _, p := range s.players.GetAllPlayers() {
		if isExcluded(p, excluded) {
			continue
		}
		p.Conn.Enqueue(msg)
	}
}

// BroadcastPacketImmediate sends a message to every online player bypassing
// the outbound queues. Used when a reply must not be reordered behind a
// backlog.
func (s *Server) BroadcastPacketImmediate(msg protocol.Message, excluded ...*playermanager.Player) {
	for _, p := range s.players.GetAllPlayers() {
		if isExcluded(p, excluded) {
			continue
		}
		if err := p.Conn.SendImmediate(msg); err != nil {
			s.logger.Debugw("immediate send failed", "player", p.Username, "error", err)
		}
	}
}

// BroadcastAsync enqueues a chat-class world event. It is delivered by the
// tick scheduler, one queued message per tick.
func (s *Server) BroadcastAsync(text string, channel protocol.ChatChannel) error {
	select {
	case s.chatQueue <- queuedChat{Text: text, Channel: channel}:
		s.logger.Info(text)
		return nil
	default:
		return ErrChatQueueFull
	}
}

// SendMessage queues a chat-class message to a single player.
func (s *Server) SendMessage(p *playermanager.Player, text string, channel protocol.ChatChannel) {
	p.Conn.Enqueue(&protocol.ChatBroadcast{Text: text, Channel: channel})
}

func isExcluded(p *playermanager.Player, excluded []*playermanager.Player) bool {
	for _, e := range excluded {
		if e != nil && e.ID == p.ID {
			return true
		}
	}
	return false
}
