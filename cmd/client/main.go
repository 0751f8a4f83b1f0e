package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/cli"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/config"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(cli.ExitUsage)
	}

	logger, err := logging.New(os.Stderr, "text", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(cli.ExitUsage)
	}

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(cli.ExitError)
	}

	code := app.Run(ctx, os.Args[1:])
	_ = app.Close()
	stop()
	os.Exit(code)
}
