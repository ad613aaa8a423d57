package gameloop

import (
	"context"
	"fmt"

	"github.com/annelo/go-game-server/internal/protocol"
)

// ticksPerDay is one in-game day at 20 ticks per second.
const ticksPerDay = 24000

// TimeSystem advances game time and announces the start of each new day.
type TimeSystem struct {
	deps Dependencies
	day  int64
}

// NewTimeSystem returns a time system starting at day zero.
func NewTimeSystem() *TimeSystem { return &TimeSystem{} }

func (t *TimeSystem) Name() string { return "time" }

func (t *TimeSystem) Init(deps Dependencies) error {
	t.deps = deps
	return nil
}

func (t *TimeSystem) Tick(ctx context.Context, tick int64) {
	if tick == 0 || tick%ticksPerDay != 0 {
		return
	}
	t.day++
	if t.deps.Broadcast != nil {
		t.deps.Broadcast(fmt.Sprintf("Day %d begins", t.day), protocol.ChannelSystem)
	}
}

// Day returns the number of completed in-game days.
func (t *TimeSystem) Day() int64 { return t.day }
