package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/achuthan-s/oasis-chat-client/config"
	"github.com/achuthan-s/oasis-chat-client/internal/app"
)

var configPath = flag.String("config", "config.json", "client configuration file")

func main() {
	flag.Parse()
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		*configPath = envPath
	}

	cfg := config.MustReadConfig(*configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.NewApp(cfg, os.Stdin, os.Stdout)
	if err := application.Run(ctx); err != nil {
		panic(err)
	}
}
