// Package playermanager keeps the registry of authenticated players. It is
// one of the two shared mutable structures in the server core (the other is
// the per-session outbound queue), so every operation is safe for concurrent
// use without external locking.
package playermanager

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/annelo/go-game-server/internal/protocol"
)

// ErrDuplicateIdentity is returned when a player with the same identity or
// username is already registered. The login path surfaces it as a
// recoverable conflict.
var ErrDuplicateIdentity = errors.New("player with this identity is already registered")

// ErrPlayerNotFound is returned when no player matches the given identity.
var ErrPlayerNotFound = errors.New("player not found")

// Conn is the session as seen from the registry side: the delivery endpoint
// for one player. Fanout code only ever touches players through it.
type Conn interface {
	// Enqueue appends to the session's outbound FIFO and never blocks.
	Enqueue(msg protocol.Message)
	// SendImmediate bypasses the outbound queue.
	SendImmediate(msg protocol.Message) error
	// Disconnect forces the session to its terminal state.
	Disconnect(reason string)
	// EntityID is the session-scoped numeric id used in spawn messages.
	EntityID() int32
}

// Player is an authenticated participant. A Player never outlives the
// session stored in Conn.
type Player struct {
	ID       uuid.UUID
	Username string
	Position protocol.Position
	HeldItem int32
	Conn     Conn
}

// PlayerManager maps player identity to live player state.
type PlayerManager struct {
	players map[uuid.UUID]*Player
	mu      sync.RWMutex
}

// NewPlayerManager creates an empty registry.
func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		players: make(map[uuid.UUID]*Player),
	}
}

// AddPlayer registers a player. Identity and username must both be unique
// among online players.
func (pm *PlayerManager) AddPlayer(p *Player) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.players[p.ID]; exists {
		return ErrDuplicateIdentity
	}
	for _, other := range pm.players {
		if other.Username == p.Username {
			return ErrDuplicateIdentity
		}
	}

	pm.players[p.ID] = p
	return nil
}

// GetPlayer returns the player with the given identity.
func (pm *PlayerManager) GetPlayer(id uuid.UUID) (*Player, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	player, exists := pm.players[id]
	if !exists {
		return nil, ErrPlayerNotFound
	}
	return player, nil
}

// FindByUsername looks a player up by name. Linear scan; the online
// population is small.
func (pm *PlayerManager) FindByUsername(name string) (*Player, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, player := range pm.players {
		if player.Username == name {
			return player, true
		}
	}
	return nil, false
}

// UpdatePlayerPosition records a new position for the player.
func (pm *PlayerManager) UpdatePlayerPosition(id uuid.UUID, position protocol.Position) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	player, exists := pm.players[id]
	if !exists {
		return ErrPlayerNotFound
	}
	player.Position = position
	return nil
}

// UpdateHeldItem records the item the player currently holds.
func (pm *PlayerManager) UpdateHeldItem(id uuid.UUID, item int32) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	player, exists := pm.players[id]
	if !exists {
		return ErrPlayerNotFound
	}
	player.HeldItem = item
	return nil
}

// RemovePlayer removes the player with the given identity. Removing an
// absent identity is a no-op.
func (pm *PlayerManager) RemovePlayer(id uuid.UUID) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.players, id)
}

// GetAllPlayers returns a point-in-time snapshot of all online players. The
// returned slice is safe to iterate while the registry mutates.
func (pm *PlayerManager) GetAllPlayers() []*Player {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	players := make([]*Player, 0, len(pm.players))
	for _, player := range pm.players {
		players = append(players, player)
	}
	return players
}

// Count returns the number of online players.
func (pm *PlayerManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.players)
}
