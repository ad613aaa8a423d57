// Package config loads and validates the server configuration. Values come
// from a YAML file, overridden by environment variables; cmd/server layers
// flags on top of that.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	yaml "gopkg.in/yaml.v3"
)

// Config is the full server configuration surface.
type Config struct {
	Port       int `yaml:"port" env:"GAME_PORT"`
	MaxPlayers int `yaml:"max-players" env:"GAME_MAX_PLAYERS"`

	// OnlineMode controls whether login identities are taken from the
	// configured authenticator or derived from the username.
	OnlineMode bool `yaml:"online-mode" env:"GAME_ONLINE_MODE"`
	// MultiplayerDebugMode allows several connections with the same
	// username. Incompatible with OnlineMode.
	MultiplayerDebugMode bool `yaml:"multiplayer-debug-mode" env:"GAME_MP_DEBUG"`

	// JoinMessage and LeaveMessage are format strings taking the username.
	JoinMessage  string `yaml:"join-message" env:"GAME_JOIN_MESSAGE"`
	LeaveMessage string `yaml:"leave-message" env:"GAME_LEAVE_MESSAGE"`

	Generator string `yaml:"generator" env:"GAME_GENERATOR"`
	Seed      int64  `yaml:"seed" env:"GAME_SEED"`

	WorldPath string `yaml:"world-path" env:"GAME_WORLD_PATH"`
	PluginDir string `yaml:"plugin-dir" env:"GAME_PLUGIN_DIR"`
	OpsFile   string `yaml:"ops-file" env:"GAME_OPS_FILE"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:         25565,
		MaxPlayers:   20,
		OnlineMode:   false,
		JoinMessage:  "%s joined the server",
		LeaveMessage: "%s left the server",
		Generator:    "superflat",
		WorldPath:    "./world",
		PluginDir:    "./plugins",
		OpsFile:      "./ops.yaml",
	}
}

// Load reads the YAML file at path (missing file means defaults) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}
	return cfg, nil
}

// Validate reports contradictory or out-of-range settings. Any error here is
// fatal to startup: the server never begins listening.
func (c *Config) Validate() error {
	// Port 0 asks the OS for an ephemeral port.
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxPlayers < 1 {
		return fmt.Errorf("max-players must be positive, got %d", c.MaxPlayers)
	}
	if c.MultiplayerDebugMode && c.OnlineMode {
		return fmt.Errorf("multiplayer debug mode cannot be enabled together with online mode since usernames would be overwritten")
	}
	if c.JoinMessage == "" || c.LeaveMessage == "" {
		return fmt.Errorf("join and leave message templates must not be empty")
	}
	return nil
}
