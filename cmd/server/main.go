package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/annelo/go-game-server/internal/config"
	"github.com/annelo/go-game-server/internal/gameloop"
	"github.com/annelo/go-game-server/internal/plugin"
	"github.com/annelo/go-game-server/internal/service"
	"github.com/annelo/go-game-server/internal/storage"
)

var (
	configPath = flag.String("config", "./config.yaml", "Path to the server configuration file")
	port       = flag.Int("port", 0, "Listening port (overrides config)")
	worldPath  = flag.String("world", "", "World data directory (overrides config)")
	pluginDir  = flag.String("plugins", "", "Plugin directory (overrides config)")
	seed       = flag.Int64("seed", 0, "World generation seed (0 = from config)")
	noStorage  = flag.Bool("no-storage", false, "Run without player-state storage")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

// consoleSender is the admin REPL as a command sender.
type consoleSender struct{}

func (consoleSender) Name() string     { return "console" }
func (consoleSender) IsOperator() bool { return true }

func main() {
	flag.Parse()

	zcfg := zap.NewProductionConfig()
	if *debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zlog, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("cannot load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *worldPath != "" {
		cfg.WorldPath = *worldPath
	}
	if *pluginDir != "" {
		cfg.PluginDir = *pluginDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	// Plugin registry: core systems first, then plugins on top.
	reg := plugin.NewDefaultRegistry()
	reg.RegisterGameSystem(gameloop.NewTimeSystem())

	opts := []service.Option{service.WithLogger(logger)}

	ops, err := storage.NewOperatorList(cfg.OpsFile)
	if err != nil {
		logger.Warnf("cannot load operator list: %v", err)
	} else {
		opts = append(opts, service.WithOperators(ops))
	}

	if *noStorage {
		logger.Info("running without player-state storage")
	} else {
		st, err := storage.NewFileStorage(cfg.WorldPath)
		if err != nil {
			logger.Warnf("cannot initialize storage: %v", err)
			logger.Warn("continuing without storage")
		} else {
			logger.Infof("player-state storage initialized in %s", cfg.WorldPath)
			opts = append(opts, service.WithStorage(st))
		}
	}

	srv := service.NewServer(cfg, reg, opts...)

	registerAdminCommands(reg, srv)
	pm := plugin.NewPluginManager(cfg.PluginDir)
	reg.MarkCore()
	if err := pm.LoadPlugins(reg); err != nil {
		logger.Warnf("plugin loading failed: %v", err)
	}
	reg.RegisterCommand("reload", "Reload plugins", func(sender plugin.CommandSender, args []string) (string, error) {
		if !sender.IsOperator() {
			return "", fmt.Errorf("you are not an operator")
		}
		if err := pm.ReloadPlugins(reg); err != nil {
			return "", err
		}
		return "Plugins reloaded successfully", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.StartServer(ctx); err != nil {
		logger.Fatalf("cannot start server: %v", err)
	}

	// Admin REPL over the registered commands.
	go runREPL(reg)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	logger.Info("received termination signal")
	srv.StopServer()
}

func registerAdminCommands(reg plugin.Registry, srv *service.Server) {
	reg.RegisterCommand("help", "List commands", func(sender plugin.CommandSender, args []string) (string, error) {
		var sb strings.Builder
		for _, cmd := range reg.Commands() {
			sb.WriteString(fmt.Sprintf("%s - %s\n", cmd.Name, cmd.Description))
		}
		return sb.String(), nil
	})
	reg.RegisterCommand("plugins", "List loaded plugins", func(sender plugin.CommandSender, args []string) (string, error) {
		var sb strings.Builder
		for _, meta := range reg.PluginMetas() {
			sb.WriteString(fmt.Sprintf("%s v%s by %s: %s\n", meta.Name, meta.Version, meta.Author, meta.Description))
		}
		return sb.String(), nil
	})
	reg.RegisterCommand("ticks", "Show completed ticks", func(sender plugin.CommandSender, args []string) (string, error) {
		return fmt.Sprintf("%d ticks", srv.TotalTicks()), nil
	})
}

func runREPL(reg plugin.Registry) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]
		found := false
		for _, cmd := range reg.Commands() {
			if cmd.Name != name {
				continue
			}
			found = true
			out, err := cmd.Handler(consoleSender{}, args)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Print(out)
				if out != "" && !strings.HasSuffix(out, "\n") {
					fmt.Println()
				}
			}
			break
		}
		if !found {
			fmt.Printf("Unknown command: %s\n", name)
		}
	}
}
