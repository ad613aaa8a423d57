package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annelo/go-game-server/internal/eventbus"
	"github.com/annelo/go-game-server/internal/playermanager"
)

func TestBus_InvocationOrder(t *testing.T) {
	bus := eventbus.NewBus(nil)

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		bus.SubscribeJoin(func(ctx context.Context, p *playermanager.Player) error {
			order = append(order, i)
			return nil
		})
	}

	bus.PublishJoin(context.Background(), &playermanager.Player{Username: "a"})
	assert.Equal(t, []int{0, 1, 2, 3}, order, "handlers must run in registration order")
}

func TestBus_HandlerFailureDoesNotStopSiblings(t *testing.T) {
	bus := eventbus.NewBus(nil)

	var calls []string
	bus.SubscribeLeave(func(ctx context.Context, p *playermanager.Player) error {
		calls = append(calls, "failing")
		return errors.New("boom")
	})
	bus.SubscribeLeave(func(ctx context.Context, p *playermanager.Player) error {
		calls = append(calls, "second")
		return nil
	})

	bus.PublishLeave(context.Background(), &playermanager.Player{Username: "a"})
	assert.Equal(t, []string{"failing", "second"}, calls)

	// The failing handler must not poison future events either.
	bus.PublishLeave(context.Background(), &playermanager.Player{Username: "b"})
	assert.Len(t, calls, 4)
}

func TestBus_PanickingHandlerIsContained(t *testing.T) {
	bus := eventbus.NewBus(nil)

	ran := false
	bus.SubscribeTick(func(ctx context.Context, tick int64) error {
		panic("handler bug")
	})
	bus.SubscribeTick(func(ctx context.Context, tick int64) error {
		ran = true
		return nil
	})

	assert.NotPanics(t, func() {
		bus.PublishTick(context.Background(), 1)
	})
	assert.True(t, ran, "sibling handler must still run")
}

func TestBus_TickPayload(t *testing.T) {
	bus := eventbus.NewBus(nil)

	var got []int64
	bus.SubscribeTick(func(ctx context.Context, tick int64) error {
		got = append(got, tick)
		return nil
	})

	bus.PublishTick(context.Background(), 7)
	bus.PublishTick(context.Background(), 8)
	assert.Equal(t, []int64{7, 8}, got)
}
