package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-game-server/internal/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 25565, cfg.Port)
	assert.Equal(t, 20, cfg.MaxPlayers)
	assert.Equal(t, "superflat", cfg.Generator)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: 4000\nmax-players: 8\ngenerator: noise\nseed: 42\njoin-message: \"welcome %s\"\n",
	), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 8, cfg.MaxPlayers)
	assert.Equal(t, "noise", cfg.Generator)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, "welcome %s", cfg.JoinMessage)
	// Untouched keys keep their defaults.
	assert.Equal(t, "%s left the server", cfg.LeaveMessage)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4000\n"), 0o644))

	t.Setenv("GAME_PORT", "5000")
	t.Setenv("GAME_MAX_PLAYERS", "3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 3, cfg.MaxPlayers)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a port\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"defaults", func(c *config.Config) {}, false},
		{"ephemeral port", func(c *config.Config) { c.Port = 0 }, false},
		{"negative port", func(c *config.Config) { c.Port = -1 }, true},
		{"port too large", func(c *config.Config) { c.Port = 70000 }, true},
		{"zero max players", func(c *config.Config) { c.MaxPlayers = 0 }, true},
		{"debug with online mode", func(c *config.Config) {
			c.MultiplayerDebugMode = true
			c.OnlineMode = true
		}, true},
		{"debug alone", func(c *config.Config) { c.MultiplayerDebugMode = true }, false},
		{"empty join message", func(c *config.Config) { c.JoinMessage = "" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
