package main

import (
	"context"
	"log"
	"os"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/config"
)

func main() {
	ctx := context.Background()

	args := os.Args[1:]
	issueToken := len(args) > 0 && args[0] == "token"
	if issueToken {
		args = args[1:]
	}

	cfg, err := config.LoadConfig(args)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if issueToken {
		if err := server.IssueToken(cfg, args, os.Stdout); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
