package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/media"
	"github.com/trakline/trakline/internal/realtime"
	"github.com/trakline/trakline/internal/server"
	"github.com/trakline/trakline/internal/storage"
	mongostore "github.com/trakline/trakline/internal/storage/mongo"
	"github.com/trakline/trakline/internal/storage/sqlite"
)

func main() {
	cfg := config.LoadServerConfig()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("init storage", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	mediaStore := media.NewDiskStore(cfg.Media)
	app := server.NewApp(cfg, store, mediaStore, log)

	// Status sweeper starts before the post sweeper; both run for the life of
	// the process.
	go realtime.NewStatusSweeper(store, mediaStore, log, cfg.Sweep).Run(ctx)
	go realtime.NewPostSweeper(store, mediaStore, log, cfg.Sweep).Run(ctx)

	if err := app.Run(ctx); err != nil {
		log.Error("server shutdown", "err", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.ServerConfig, log *slog.Logger) (storage.Store, error) {
	if cfg.Mongo.URI != "" {
		log.Info("using mongodb store", "db", cfg.Mongo.Database)
		return mongostore.NewStore(ctx, cfg.Mongo)
	}
	log.Info("using sqlite store", "path", cfg.Database.Path)
	return sqlite.NewStore(cfg.Database)
}
