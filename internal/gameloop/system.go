// Package gameloop defines the systems the tick scheduler runs every cycle.
package gameloop

import (
	"context"

	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/protocol"
	"github.com/annelo/go-game-server/internal/world"
)

// System is logic executed once per simulation tick.
type System interface {
	// Init is called once before the loop starts.
	Init(deps Dependencies) error
	// Tick is called with the current tick number every cycle.
	Tick(ctx context.Context, tick int64)
	// Name returns a readable system name.
	Name() string
}

// Dependencies are handed to systems at initialization.
type Dependencies struct {
	Players *playermanager.PlayerManager
	World   *world.World
	// Broadcast enqueues a chat-class message to every online player.
	Broadcast func(text string, channel protocol.ChatChannel)
}
