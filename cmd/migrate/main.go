package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/portfolio/backend/internal/config"
	"github.com/portfolio/backend/internal/docstore"
	"github.com/portfolio/backend/internal/logging"
	"github.com/portfolio/backend/internal/repository"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [command] [collection...]

Commands:
  (default)   create the contact message collection and its index
  ensure      create the named collections (default: message)
  list        print the collections in the configured database`)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load(".env", "../.env")
	if err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel)

	cmd := ""
	var args []string
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreConnectTimeout)
	store, err := docstore.Connect(ctx, docstore.Config{
		URL:            cfg.DatabaseURL,
		Database:       cfg.DatabaseName,
		ConnectTimeout: cfg.StoreConnectTimeout,
	})
	cancel()
	if err != nil {
		logging.Fatal("connect failed", "error", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	switch cmd {
	case "":
		runEnsure(context.Background(), store, []string{repository.ContactCollection})
	case "ensure":
		if len(args) == 0 {
			args = []string{repository.ContactCollection}
		}
		runEnsure(context.Background(), store, args)
	case "list":
		runList(context.Background(), store)
	default:
		usage()
	}
}

func runEnsure(ctx context.Context, store docstore.Store, collections []string) {
	for _, name := range collections {
		if err := store.EnsureCollection(ctx, name); err != nil {
			logging.Fatal("ensure collection failed", "collection", name, "error", err)
		}
		slog.Info("collection ready", "collection", name)
	}
}

func runList(ctx context.Context, store docstore.Store) {
	names, err := store.ListCollections(ctx)
	if err != nil {
		logging.Fatal("list collections failed", "error", err)
	}
	fmt.Println(strings.Join(names, "\n"))
}
