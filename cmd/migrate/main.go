package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/config"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
	"github.com/partnerlink/settlement-api/internal/pkg/logger"
	"github.com/partnerlink/settlement-api/migrations"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		Service:     "settlement-migrate",
	})

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}

	m, err := database.NewMigrator(db, migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	runErr := run(m, command, args[1:])
	if err := m.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close migrator")
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Str("command", command).Msg("Migration command failed")
	}
}

func run(m *database.Migrator, command string, args []string) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Steps(-1)
	case "step":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate <command> [args]

Commands:
  up             apply all pending migrations
  down           roll back the last migration
  step <n>       apply n migrations (negative rolls back)
  version        print the current version
  force <v>      set the version without running migrations`)
}
