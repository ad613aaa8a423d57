// Package eventbus dispatches join, leave and tick notifications to
// registered handlers. Handlers run sequentially in registration order; a
// failing or panicking handler is logged and never affects its siblings or
// future events.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/annelo/go-game-server/internal/playermanager"
)

// PlayerHandler handles a player join or leave event.
type PlayerHandler func(ctx context.Context, p *playermanager.Player) error

// TickHandler handles one simulation tick.
type TickHandler func(ctx context.Context, tick int64) error

// Bus is the publish/subscribe dispatcher for domain events.
type Bus struct {
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	join  []PlayerHandler
	leave []PlayerHandler
	tick  []TickHandler
}

// NewBus creates a bus logging handler failures through the given logger.
func NewBus(logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{logger: logger}
}

// SubscribeJoin registers a handler for player join events.
func (b *Bus) SubscribeJoin(h PlayerHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.join = append(b.join, h)
}

// SubscribeLeave registers a handler for player leave events.
func (b *Bus) SubscribeLeave(h PlayerHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leave = append(b.leave, h)
}

// SubscribeTick registers a handler invoked every simulation tick.
func (b *Bus) SubscribeTick(h TickHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick = append(b.tick, h)
}

// PublishJoin invokes all join handlers for the player, in order.
func (b *Bus) PublishJoin(ctx context.Context, p *playermanager.Player) {
	b.mu.RLock()
	handlers := b.join
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := b.invokePlayer(ctx, h, p); err != nil {
			b.logger.Errorw("join handler failed", "index", i, "player", p.Username, "error", err)
		}
	}
}

// PublishLeave invokes all leave handlers for the player, in order.
func (b *Bus) PublishLeave(ctx context.Context, p *playermanager.Player) {
	b.mu.RLock()
	handlers := b.leave
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := b.invokePlayer(ctx, h, p); err != nil {
			b.logger.Errorw("leave handler failed", "index", i, "player", p.Username, "error", err)
		}
	}
}

// PublishTick invokes all tick handlers, in order.
func (b *Bus) PublishTick(ctx context.Context, tick int64) {
	b.mu.RLock()
	handlers := b.tick
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := b.invokeTick(ctx, h, tick); err != nil {
			b.logger.Errorw("tick handler failed", "index", i, "tick", tick, "error", err)
		}
	}
}

func (b *Bus) invokePlayer(ctx context.Context, h PlayerHandler, p *playermanager.Player) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, p)
}

func (b *Bus) invokeTick(ctx context.Context, h TickHandler, tick int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, tick)
}
