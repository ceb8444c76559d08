// Command dispatcher drains due webhook deliveries once and exits. Meant for
// cron or one-off operator runs; the server runs the same loop continuously.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/pkg/logger"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/webhook"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall run deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn is required: deliveries live in Postgres")
	}
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}
	defer db.Close()

	store := repository.NewPostgresWebhookStore(db)
	dispatcher := webhook.NewDispatcher(cfg, store)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	total := 0
	for {
		sent, err := dispatcher.RunBatch(ctx)
		if err != nil {
			log.Fatalf("Dispatch batch failed: %v", err)
		}
		total += sent
		if sent == 0 {
			break
		}
	}
	logger.Info("dispatch run complete", "attempted", total)
}
