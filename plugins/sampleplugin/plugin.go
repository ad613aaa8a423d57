package main

import (
	"fmt"
	"log"

	"github.com/annelo/go-game-server/internal/plugin"
)

// Register is invoked by PluginManager to register commands and hooks.
func Register(reg plugin.Registry) {
	// Log every successful login.
	reg.RegisterHook(plugin.HookAfterLogin, func(args ...interface{}) {
		if len(args) >= 1 {
			log.Printf("[SamplePlugin] player logged in: %v", args[0])
		}
	})

	// Sample plugin configuration structure.
	type SamplePluginConfig struct {
		Greeting string `yaml:"greeting"`
		Value    int    `yaml:"value"`
	}
	reg.RegisterPluginConfig("sampleplugin", &SamplePluginConfig{Greeting: "hello"})

	// Sample plugin command: show plugin info.
	reg.RegisterCommand("sampleinfo", "Show sample plugin info", func(sender plugin.CommandSender, args []string) (string, error) {
		cfg := reg.PluginConfig("sampleplugin").(*SamplePluginConfig)
		return fmt.Sprintf("Greeting: %s, Value: %d", cfg.Greeting, cfg.Value), nil
	})
}

// main is required for the package to link; it is never called when the
// plugin is loaded via plugin.Open.
func main() {}
