package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/database"
)

// cliConfig is the subset of the server environment the admin commands need.
type cliConfig struct {
	DatabaseURL             string `env:"DATABASE_URL,required"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	InvitationRetentionDays int    `env:"INVITATION_RETENTION_DAYS" envDefault:"30"`
}

var loadedConfig cliConfig

var rootCommand = cobra.Command{
	Use:           "therapiictl",
	Short:         "therapiictl manages the Therapii API database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		if err := env.Parse(&loadedConfig); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		level, err := zerolog.ParseLevel(loadedConfig.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

func init() {
	migrateCommand.AddCommand(&migrateUpCommand)
	migrateCommand.AddCommand(&migrateDownCommand)

	invitationsCommand.AddCommand(&listInvitationsCommand)

	rootCommand.AddCommand(&migrateCommand)
	rootCommand.AddCommand(&purgeCommand)
	rootCommand.AddCommand(&invitationsCommand)
}

// openDatabase connects and pings the configured database.
func openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.Connect(loadedConfig.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
