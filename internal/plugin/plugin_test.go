package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/annelo/go-game-server/internal/gameloop"
)

type fakeSystem struct{ name string }

func (f *fakeSystem) Init(gameloop.Dependencies) error  { return nil }
func (f *fakeSystem) Tick(ctx context.Context, _ int64) {}
func (f *fakeSystem) Name() string                      { return f.name }

func TestRegistry_CommandsAndSystems(t *testing.T) {
	reg := NewDefaultRegistry()

	reg.RegisterGameSystem(&fakeSystem{name: "time"})
	reg.RegisterCommand("list", "List online players", func(sender CommandSender, args []string) (string, error) {
		return "", nil
	})

	if len(reg.GameSystems()) != 1 || reg.GameSystems()[0].Name() != "time" {
		t.Fatalf("unexpected systems: %+v", reg.GameSystems())
	}
	if len(reg.Commands()) != 1 || reg.Commands()[0].Name != "list" {
		t.Fatalf("unexpected commands: %+v", reg.Commands())
	}
}

func TestRegistry_ClearPluginsRestoresCore(t *testing.T) {
	reg := NewDefaultRegistry()

	reg.RegisterGameSystem(&fakeSystem{name: "core"})
	reg.RegisterCommand("stop", "", nil)
	reg.RegisterHook(HookAfterLogin, func(args ...interface{}) {})
	reg.MarkCore()

	reg.RegisterGameSystem(&fakeSystem{name: "plugin"})
	reg.RegisterCommand("extra", "", nil)
	reg.RegisterHook(HookAfterLogin, func(args ...interface{}) {})
	reg.RegisterPluginMeta(PluginMeta{Name: "extra-plugin"})

	reg.ClearPlugins()

	if got := len(reg.GameSystems()); got != 1 {
		t.Fatalf("expected 1 core system after clear, got %d", got)
	}
	if got := len(reg.Commands()); got != 1 {
		t.Fatalf("expected 1 core command after clear, got %d", got)
	}
	if got := len(reg.Hooks(HookAfterLogin)); got != 1 {
		t.Fatalf("expected 1 core hook after clear, got %d", got)
	}
	if got := len(reg.PluginMetas()); got != 0 {
		t.Fatalf("expected no plugin metas after clear, got %d", got)
	}
}

func TestRegistry_PluginConfigLoading(t *testing.T) {
	type cfg struct {
		Greeting string `yaml:"greeting"`
		Value    int    `yaml:"value"`
	}

	reg := NewDefaultRegistry()
	reg.RegisterPluginConfig("sample", &cfg{Greeting: "default"})

	// No file on disk: the sample stays in place.
	dir := t.TempDir()
	if err := reg.LoadPluginConfig("sample", dir); err != nil {
		t.Fatalf("LoadPluginConfig: %v", err)
	}
	if got := reg.PluginConfig("sample").(*cfg); got.Greeting != "default" {
		t.Fatalf("expected default config, got %+v", got)
	}

	// With a file, values are replaced.
	path := filepath.Join(dir, "sample.yaml")
	if err := os.WriteFile(path, []byte("greeting: hi\nvalue: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadPluginConfig("sample", dir); err != nil {
		t.Fatalf("LoadPluginConfig: %v", err)
	}
	got := reg.PluginConfig("sample").(*cfg)
	if got.Greeting != "hi" || got.Value != 7 {
		t.Fatalf("config not loaded: %+v", got)
	}
}

func TestRegistry_ConfigForUnknownPlugin(t *testing.T) {
	reg := NewDefaultRegistry()
	if err := reg.LoadPluginConfig("nobody", t.TempDir()); err != nil {
		t.Fatalf("loading config for unregistered plugin should be a no-op, got %v", err)
	}
	if reg.PluginConfig("nobody") != nil {
		t.Fatalf("expected nil config for unregistered plugin")
	}
}
