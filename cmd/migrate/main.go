package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/store/postgres"
)

// Standalone migration runner for environments where the server binary is
// not deployed. The DSN comes from the first argument or from the same
// DB_* environment variables the server reads.
func main() {
	ctx := context.Background()

	var dsn string
	if len(os.Args) > 1 {
		dsn = os.Args[1]
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		dsn = cfg.Database.DSN()
	}

	db, err := postgres.New(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database")
	fmt.Println("Applying 001_initial_schema.up.sql...")

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("All migrations completed successfully")
}
