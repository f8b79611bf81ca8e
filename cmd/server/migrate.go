package main

import (
	"errors"
	"fmt"

	"github.com/dkeye/LiveClass/internal/adapters/store/migrations"
	"github.com/dkeye/LiveClass/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|status|...> [args]",
	Short: "Run database migrations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return errors.New("database.dsn is not set")
		}

		goose.SetBaseFS(migrations.MigrationsFS)
		db, err := goose.OpenDBWithDriver("pgx", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("goose: open db: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Str("module", "migrate").Msg("close db")
			}
		}()

		if err := goose.RunContext(cmd.Context(), args[0], db, ".", args[1:]...); err != nil {
			return fmt.Errorf("goose %s: %w", args[0], err)
		}
		log.Info().Str("module", "migrate").Str("command", args[0]).Msg("migrations done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
