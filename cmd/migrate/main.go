package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/frostdev-ops/jobwatch/internal/config"
	"github.com/frostdev-ops/jobwatch/internal/database"
	"github.com/frostdev-ops/jobwatch/pkg/logger"
)

const usage = `Usage: migrate [-config path] [-path migrations] <command>

Commands:
  up            apply all pending migrations
  down          roll back all migrations
  steps <n>     apply (n > 0) or roll back (n < 0) n migrations
  version       print the current schema version
`

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	migrationsPath := flag.String("path", "", "migrations directory (overrides database.migrations_path)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: "text"})

	path := cfg.Database.MigrationsPath
	if *migrationsPath != "" {
		path = *migrationsPath
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "sqlite3", driver)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}

	switch command := flag.Arg(0); command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("An error occurred while migrating up: %v", err)
		}
		log.Info("Migrations applied successfully.")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("An error occurred while migrating down: %v", err)
		}
		log.Info("Migrations rolled back successfully.")
	case "steps":
		n, err := strconv.Atoi(flag.Arg(1))
		if err != nil || n == 0 {
			log.Fatalf("steps requires a non-zero integer, got %q", flag.Arg(1))
		}
		if err := m.Steps(n); err != nil {
			log.Fatalf("An error occurred while migrating %d steps: %v", n, err)
		}
		log.Infof("Migrated %d steps.", n)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations applied.")
			return
		}
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Infof("Schema version %d (dirty: %t)", version, dirty)
	default:
		log.Fatalf("Unknown command: %s. Use up, down, steps or version.", command)
	}
}
