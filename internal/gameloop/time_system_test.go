package gameloop

import (
	"context"
	"testing"

	"github.com/annelo/go-game-server/internal/protocol"
)

func TestTimeSystem_AnnouncesNewDays(t *testing.T) {
	var announced []string
	ts := NewTimeSystem()
	err := ts.Init(Dependencies{
		Broadcast: func(text string, channel protocol.ChatChannel) {
			if channel != protocol.ChannelSystem {
				t.Errorf("day announcements belong on the system channel, got %v", channel)
			}
			announced = append(announced, text)
		},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx := context.Background()
	ts.Tick(ctx, 0)
	ts.Tick(ctx, 1)
	ts.Tick(ctx, ticksPerDay-1)
	if len(announced) != 0 {
		t.Fatalf("no announcement expected before the first day boundary, got %v", announced)
	}

	ts.Tick(ctx, ticksPerDay)
	ts.Tick(ctx, 2*ticksPerDay)
	if len(announced) != 2 {
		t.Fatalf("expected 2 announcements, got %v", announced)
	}
	if announced[0] != "Day 1 begins" || announced[1] != "Day 2 begins" {
		t.Fatalf("unexpected announcements: %v", announced)
	}
	if ts.Day() != 2 {
		t.Fatalf("expected day counter 2, got %d", ts.Day())
	}
}

func TestTimeSystem_NoBroadcastDependency(t *testing.T) {
	ts := NewTimeSystem()
	if err := ts.Init(Dependencies{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Must not panic without a broadcast function wired.
	ts.Tick(context.Background(), ticksPerDay)
}
