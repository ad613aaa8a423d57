package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-game-server/internal/protocol"
	"github.com/annelo/go-game-server/internal/storage"
)

func TestFileStorage_SaveAndLoad(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	defer fs.Close()

	state := &storage.PlayerState{
		ID:       uuid.New(),
		Username: "Alice",
		Position: protocol.Position{X: 10, Y: 64, Z: -5},
		HeldItem: 3,
		LastSeen: 1700000000,
	}
	require.NoError(t, fs.SavePlayerState(context.Background(), state))

	got, err := fs.LoadPlayerState(context.Background(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestFileStorage_UnknownPlayer(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.LoadPlayerState(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, storage.ErrStateNotFound))
}

func TestFileStorage_OverwriteKeepsLatest(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	id := uuid.New()
	first := &storage.PlayerState{ID: id, Username: "Bob", HeldItem: 1}
	second := &storage.PlayerState{ID: id, Username: "Bob", HeldItem: 9}
	require.NoError(t, fs.SavePlayerState(context.Background(), first))
	require.NoError(t, fs.SavePlayerState(context.Background(), second))

	got, err := fs.LoadPlayerState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.HeldItem)
}

func TestOperatorList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- Alice\n- Carol\n"), 0o644))

	ol, err := storage.NewOperatorList(path)
	require.NoError(t, err)

	assert.True(t, ol.IsOperator("Alice"))
	assert.False(t, ol.IsOperator("Bob"))

	// Reload picks up edits.
	require.NoError(t, os.WriteFile(path, []byte("- Bob\n"), 0o644))
	require.NoError(t, ol.Reload())
	assert.True(t, ol.IsOperator("Bob"))
	assert.False(t, ol.IsOperator("Alice"))
}

func TestOperatorList_MissingFileIsEmpty(t *testing.T) {
	ol, err := storage.NewOperatorList(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, ol.IsOperator("anyone"))
}
