package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"mygpt-backend/internal/client"
	"mygpt-backend/internal/config"
	"mygpt-backend/pkg/logger"
)

func main() {
	var configPath, chatID string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&chatID, "chat", "", "open an existing chat")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// keep diagnostics off the conversation
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger.SetOutput(os.Stderr)

	if cfg.Client.Token == "" {
		log.Fatal("client.token (or MYGPT_TOKEN) must be set; mint one with `server -issue-token <user>`")
	}

	ctx := context.Background()

	r := newREPL(client.New(cfg.Client), cfg, os.Stdout)
	if chatID != "" {
		r.open(ctx, chatID)
	}
	err = r.run(ctx)
	r.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
