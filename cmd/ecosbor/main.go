package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/ecosbor/internal/config"
	"github.com/and161185/ecosbor/internal/deps"
	"github.com/and161185/ecosbor/internal/server"
	"github.com/and161185/ecosbor/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := config.NewConfig()
	storage, err := storage.NewPostgreStorage(ctx, config.DatabaseURI)
	if err != nil {
		config.Logger.Fatal(err)
	}

	deps := deps.NewDependencies(config.Key)
	deps.Logger = config.Logger

	srv := server.NewServer(storage, config, deps)
	if err := srv.Run(ctx); err != nil {
		config.Logger.Fatal(err)
	}
}
