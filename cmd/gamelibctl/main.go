package main

import (
	"context"
	"os"

	"gamelibrary/internal/catalog"
	"gamelibrary/internal/cli"
	"gamelibrary/internal/config"
	"gamelibrary/internal/database"
	"gamelibrary/internal/logging"
	"gamelibrary/internal/search"

	_ "github.com/lib/pq"
)

func main() {
	root := cli.NewRootCommand(open)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func open(ctx context.Context) (*cli.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt := &cli.Runtime{
		DB:    db,
		Store: catalog.NewPostgresStore(db),
		Log:   log,
		Close: func() {
			db.Close()
			log.Sync()
		},
	}
	if cfg.MeiliHost != "" {
		mirror := search.NewMirror(cfg.MeiliHost, cfg.MeiliAPIKey, cfg.MeiliIndex)
		if err := mirror.EnsureSettings(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Mirror = mirror
	}
	return rt, nil
}
