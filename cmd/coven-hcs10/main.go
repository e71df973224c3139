// ABOUTME: Entry point for coven-hcs10, the HCS-10 connection manager CLI
// ABOUTME: Dispatches subcommands against one agent's connections and topics

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-hcs10/internal/config"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                      _              _  ___
  ___ _____   _____ _ __        | |__   ___ ___  / |/ _ \
 / __/ _ \ \ / / _ \ '_ \ _____ | '_ \ / __/ __| | | | | |
| (_| (_) \ V /  __/ | | |_____|| | | | (__\__ \ | | |_| |
 \___\___/ \_/ \___|_| |_|      |_| |_|\___|___/ |_|\___/
`

func usage() {
	fmt.Println("Usage: coven-hcs10 <command> [--agent NAME] [--json]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  connections                     List established connections")
	fmt.Println("  requests                        List pending connection requests")
	fmt.Println("  view KEY                        Show one pending request")
	fmt.Println("  reject KEY                      Drop a pending request locally")
	fmt.Println("  send ID TEXT [--wait] [--memo M] Send a message, optionally awaiting a reply")
	fmt.Println("  check ID                        Show unread messages and advance the checkpoint")
	fmt.Println("  peek ID [N]                     Show the last N messages without advancing")
	fmt.Println("  history ID                      Show every message on a connection")
	fmt.Println("  monitor [--accept-all] [--target ACCOUNT] [--duration D]")
	fmt.Println("                                  Accept inbound connection requests")
	fmt.Println("  agents                          List stored agent identities")
	fmt.Println("  version                         Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Println(version)
		return
	}
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		usage()
		return
	}

	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}

	jsonOut := slices.Contains(args, "--json")
	args = slices.DeleteFunc(args, func(a string) bool { return a == "--json" })

	if code := report(os.Stdout, os.Stderr, run(ctx, args), jsonOut); code != 0 {
		os.Exit(code)
	}
}

// report writes the outcome of a command and returns the exit code. Domain
// failures exit 2 and are encoded as a Result in JSON mode; any other error
// goes to stderr and exits 1.
func report(out, errOut io.Writer, err error, jsonOut bool) int {
	switch {
	case err == nil:
		if jsonOut {
			_ = json.NewEncoder(out).Encode(hcs.OK())
		}
		return 0
	case hcs.IsDomainFailure(err):
		if jsonOut {
			_ = json.NewEncoder(out).Encode(hcs.Fail(err))
		} else {
			color.New(color.FgYellow).Fprintf(errOut, "%v\n", err)
		}
		return 2
	default:
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
}

var commands = map[string]func(context.Context, []string) error{
	"connections": runConnections,
	"requests":    runRequests,
	"view":        runView,
	"reject":      runReject,
	"send":        runSend,
	"check":       runCheck,
	"peek":        runPeek,
	"history":     runHistory,
	"monitor":     runMonitor,
	"agents":      runAgents,
}

func printBanner(configPath string, cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Network:   %s\n", cfg.Network.Name)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s (%s)\n", cfg.Agent.Name, cfg.Agent.AccountID)
	green.Print("    ▶ ")
	fmt.Printf("Inbound:   %s\n", cfg.Agent.InboundTopicID)
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = newColorHandler(os.Stderr, level)
	}

	return slog.New(handler)
}
