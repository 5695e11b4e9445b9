package main

// Run database migrations:
//   go run ./cmd/migrate --direction up

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()

	direction := pflag.StringP("direction", "d", "up", "migration direction: up, down or status")
	databaseURL := pflag.String("database-url", cfg.DatabaseURL, "Postgres connection string")
	pflag.Parse()

	if strings.TrimSpace(*databaseURL) == "" {
		log.Printf("DATABASE_URL or --database-url is required")
		os.Exit(1)
	}

	ctx := context.Background()
	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, *databaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, strings.ToLower(strings.TrimSpace(*direction))); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	log.Printf("migrations %s complete", *direction)
}
