// cmd/seeder/main.go
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/unclebandit/followup-engine/internal/config"
	"github.com/unclebandit/followup-engine/internal/db"
	"github.com/unclebandit/followup-engine/internal/logger"
)

var seedFiles = []string{
	"seed/campaigns.sql",
	"seed/email_accounts.sql",
	"seed/email_messages.sql",
	"seed/scheduled_messages.sql",
}

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, "text")

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(conn, log); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Error("failed to read seed file", "file", file, "error", err)
			os.Exit(1)
		}

		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Error("failed to execute seed file", "file", file, "error", err)
			os.Exit(1)
		}
		log.Info("seeded", "file", file)
	}

	log.Info("database seeding completed")
}
