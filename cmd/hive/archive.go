package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/store"
)

func runArchive(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hive archive <swarm-id>")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	return printArchive(w, db, args[0])
}

func printArchive(w io.Writer, db *store.Store, swarmID string) error {
	state, err := db.LoadArchive(context.Background(), swarmID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
