package service

import (
	"fmt"
	"strings"

	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/plugin"
	"github.com/annelo/go-game-server/internal/protocol"
)

const commandPrefix = "/"

// isCommand decides whether a chat line is a command. The grammar beyond the
// prefix belongs to the command handlers.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix)
}

// playerSender adapts a player to the command-sender contract.
type playerSender struct {
	player *playermanager.Player
	srv    *Server
}

func (ps playerSender) Name() string { return ps.player.Username }

func (ps playerSender) IsOperator() bool {
	if ps.srv.ops == nil {
		return false
	}
	return ps.srv.ops.IsOperator(ps.player.Username)
}

// runCommand executes a slash command for a player. Failures are reported to
// the issuing player only, never broadcast.
func (s *Server) runCommand(player *playermanager.Player, line string) {
	for _, h := range s.registry.Hooks(plugin.HookBeforeCommand) {
		h(player.Username, line)
	}

	fields := strings.Fields(strings.TrimPrefix(line, commandPrefix))
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	for _, cmd := range s.registry.Commands() {
		if cmd.Name != name {
			continue
		}
		out, err := cmd.Handler(playerSender{player: player, srv: s}, args)
		if err != nil {
			s.SendMessage(player, fmt.Sprintf("Command error: %v", err), protocol.ChannelSystem)
			return
		}
		if out != "" {
			s.SendMessage(player, strings.TrimRight(out, "\n"), protocol.ChannelSystem)
		}
		return
	}
	s.SendMessage(player, fmt.Sprintf("Unknown command: %s", name), protocol.ChannelSystem)
}

// registerCoreCommands installs the built-in gameplay commands.
func (s *Server) registerCoreCommands() {
	s.registry.RegisterCommand("list", "List online players", func(sender plugin.CommandSender, args []string) (string, error) {
		players := s.players.GetAllPlayers()
		names := make([]string, 0, len(players))
		for _, p := range players {
			names = append(names, p.Username)
		}
		return fmt.Sprintf("Online (%d/%d): %s", len(names), s.cfg.MaxPlayers, strings.Join(names, ", ")), nil
	})

	s.registry.RegisterCommand("say", "Broadcast a server message", func(sender plugin.CommandSender, args []string) (string, error) {
		if !sender.IsOperator() {
			return "", fmt.Errorf("you are not an operator")
		}
		if len(args) == 0 {
			return "", fmt.Errorf("usage: say <message>")
		}
		return "", s.BroadcastAsync(fmt.Sprintf("[Server] %s", strings.Join(args, " ")), protocol.ChannelSystem)
	})

	s.registry.RegisterCommand("kick", "Disconnect a player: kick <username> [reason]", func(sender plugin.CommandSender, args []string) (string, error) {
		if !sender.IsOperator() {
			return "", fmt.Errorf("you are not an operator")
		}
		if len(args) == 0 {
			return "", fmt.Errorf("usage: kick <username> [reason]")
		}
		username := args[0]
		if !s.IsPlayerOnline(username) {
			return "", fmt.Errorf("player %s is not online", username)
		}
		s.DisconnectIfConnected(username, strings.Join(args[1:], " "))
		return fmt.Sprintf("Kicked %s", username), nil
	})

	s.registry.RegisterCommand("stop", "Stop the server", func(sender plugin.CommandSender, args []string) (string, error) {
		if !sender.IsOperator() {
			return "", fmt.Errorf("you are not an operator")
		}
		// StopServer waits for this very session's goroutine, so it must
		// not run on the dispatch path.
		go s.StopServer()
		return "Server stopping", nil
	})
}
