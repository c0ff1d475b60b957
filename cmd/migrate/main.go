package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/openbridge/openbridge-backend/internal/config"
	"github.com/openbridge/openbridge-backend/internal/log"
	"github.com/openbridge/openbridge-backend/utils"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", "sql", "directory with migration files")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-dir sql] COMMAND\n\nCommands:\n  up\n  down\n  status\n  version")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatalw("Failed to set dialect", "error", err)
	}

	migrations := utils.MigrationsDir(*dir)
	command := args[0]
	switch command {
	case "up":
		err = goose.Up(db, migrations)
	case "down":
		err = goose.Down(db, migrations)
	case "status":
		err = goose.Status(db, migrations)
	case "version":
		err = goose.Version(db, migrations)
	default:
		logger.Fatalw("Unknown command", "command", command)
	}
	if err != nil {
		logger.Fatalw("Migration failed", "command", command, "dir", migrations, "error", err)
	}
	logger.Infow("Migration finished", "command", command)
}
