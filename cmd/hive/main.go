package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mtzanidakis/hive/internal/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("hive %s\n", version)
	case "gateway":
		if err = runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
		}
	case "routine":
		err = runRoutine(os.Stdout, os.Args[2:])
	case "vault":
		err = runVault(os.Stdout, os.Args[2:])
	case "archive":
		err = runArchive(os.Stdout, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: hive <command>

Commands:
  gateway                 Start the hive gateway service
  routine <file>          Validate a routine file and print its entry points
  vault seal|unseal       Seal or unseal a value with the vault passphrase
  archive <swarm-id>      Print the archived state of a stopped swarm
  version                 Print version
`)
}

// setupLogger installs the default slog handler and returns the level so
// config reloads can change it.
func setupLogger(w io.Writer, cfg config.LogConfig) *slog.LevelVar {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return level
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
