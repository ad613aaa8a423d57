// Package storage persists per-player state and the operator list. The
// server core only depends on the PlayerStorage interface; running without
// storage is fully supported.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/annelo/go-game-server/internal/protocol"
)

// ErrStateNotFound is returned when no saved state exists for a player.
var ErrStateNotFound = errors.New("player state not found")

// PlayerState is the state saved between sessions.
type PlayerState struct {
	ID       uuid.UUID         `json:"id"`
	Username string            `json:"username"`
	Position protocol.Position `json:"position"`
	HeldItem int32             `json:"held_item"`
	LastSeen int64             `json:"last_seen"`
}

// PlayerStorage stores and restores player state.
type PlayerStorage interface {
	SavePlayerState(ctx context.Context, state *PlayerState) error
	// LoadPlayerState returns ErrStateNotFound when the player has no
	// saved state.
	LoadPlayerState(ctx context.Context, id uuid.UUID) (*PlayerState, error)
	Close() error
}

// FileStorage keeps one JSON file per player under a directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the directory if needed and verifies it is
// writable.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return nil, fmt.Errorf("storage directory %s is not writable: %w", dir, err)
	}
	os.Remove(probe)
	return &FileStorage{dir: dir}, nil
}

func (fs *FileStorage) playerPath(id uuid.UUID) string {
	return filepath.Join(fs.dir, "player-"+id.String()+".json")
}

func (fs *FileStorage) SavePlayerState(ctx context.Context, state *PlayerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode player state %s: %w", state.ID, err)
	}
	if err := os.WriteFile(fs.playerPath(state.ID), data, 0o644); err != nil {
		return fmt.Errorf("write player state %s: %w", state.ID, err)
	}
	return nil
}

func (fs *FileStorage) LoadPlayerState(ctx context.Context, id uuid.UUID) (*PlayerState, error) {
	data, err := os.ReadFile(fs.playerPath(id))
	if os.IsNotExist(err) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read player state %s: %w", id, err)
	}
	var state PlayerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse player state %s: %w", id, err)
	}
	return &state, nil
}

func (fs *FileStorage) Close() error { return nil }
