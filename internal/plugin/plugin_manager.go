package plugin

import (
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"os"
	"path/filepath"
	pluginpkg "plugin"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// PluginAPIVersion defines the current plugin API version.
const PluginAPIVersion = "1"

// PluginManager handles loading of plugins from shared object files.
type PluginManager struct {
	// Dir is the directory where plugin .so files are located.
	Dir string
	// mu protects LoadPlugins from concurrent execution.
	mu sync.Mutex
}

// NewPluginManager creates a PluginManager for a given directory.
func NewPluginManager(dir string) *PluginManager {
	return &PluginManager{Dir: dir}
}

// Metrics for plugin loading.
var (
	pluginLoadCount  = expvar.NewInt("plugins_loaded")
	pluginSkipCount  = expvar.NewInt("plugins_skipped")
	pluginErrorCount = expvar.NewInt("plugins_errors")
)

// LoadPlugins loads all plugins in pm.Dir and invokes their Register
// function.
func (pm *PluginManager) LoadPlugins(reg Registry) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	files, err := os.ReadDir(pm.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		pluginErrorCount.Add(1)
		return fmt.Errorf("cannot read plugin directory %s: %w", pm.Dir, err)
	}
	for _, f := range files {
		if filepath.Ext(f.Name()) != ".so" {
			continue
		}
		// Load plugin metadata from JSON/YAML, enforce API version.
		skip := false
		base := strings.TrimSuffix(f.Name(), ".so")
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			metaPath := filepath.Join(pm.Dir, base+ext)
			data, err := os.ReadFile(metaPath)
			if err != nil {
				continue
			}
			var meta PluginMeta
			if ext == ".json" {
				if err := json.Unmarshal(data, &meta); err != nil {
					log.Printf("failed to parse plugin metadata %s: %v", metaPath, err)
					continue
				}
			} else {
				if err := yaml.Unmarshal(data, &meta); err != nil {
					log.Printf("failed to parse plugin metadata %s: %v", metaPath, err)
					continue
				}
			}
			if meta.Version != PluginAPIVersion {
				log.Printf("skipping plugin %s: version mismatch (got %s, expected %s)", meta.Name, meta.Version, PluginAPIVersion)
				skip = true
			} else {
				reg.RegisterPluginMeta(meta)
			}
			break
		}
		if skip {
			pluginSkipCount.Add(1)
			continue
		}
		pluginPath := filepath.Join(pm.Dir, f.Name())
		for _, h := range reg.Hooks(HookBeforePluginLoad) {
			h(pluginPath)
		}
		p, err := pluginpkg.Open(pluginPath)
		if err != nil {
			return fmt.Errorf("failed to open plugin %s: %w", pluginPath, err)
		}
		sym, err := p.Lookup("Register")
		if err != nil {
			pluginErrorCount.Add(1)
			log.Printf("no Register symbol in %s: %v", pluginPath, err)
			continue
		}
		// Safely invoke plugin registration, catch panics.
		func() {
			defer func() {
				if r := recover(); r != nil {
					pluginErrorCount.Add(1)
					log.Printf("panic in plugin %s Register: %v", pluginPath, r)
				}
			}()
			registerFunc, ok := sym.(func(Registry))
			if !ok {
				pluginErrorCount.Add(1)
				log.Printf("invalid Register signature in %s", pluginPath)
				return
			}
			registerFunc(reg)
			if err := reg.LoadPluginConfig(base, pm.Dir); err != nil {
				pluginErrorCount.Add(1)
				log.Printf("failed to load config for plugin %s: %v", base, err)
			}
			pluginLoadCount.Add(1)
			for _, h := range reg.Hooks(HookAfterPluginLoad) {
				h(pluginPath)
			}
		}()
	}
	return nil
}

// ReloadPlugins clears plugin registrations back to the core mark and loads
// the plugin directory again.
func (pm *PluginManager) ReloadPlugins(reg Registry) error {
	for _, h := range reg.Hooks(HookBeforePluginUnload) {
		h(pm.Dir)
	}
	reg.ClearPlugins()
	for _, h := range reg.Hooks(HookAfterPluginUnload) {
		h(pm.Dir)
	}
	return pm.LoadPlugins(reg)
}
