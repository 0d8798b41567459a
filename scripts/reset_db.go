package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/credmarket/internal/config"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/state"
)

func main() {
	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel, os.Getenv("LOG_FORMAT"))
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	store, err := state.Open(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer store.Close()

	if cycle, err := store.CurrentCycleNumber(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not read cycle counter before reset")
	} else {
		log.Info().Int("cycle", cycle).Msg("Discarding updater cycle history")
	}

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := store.DropSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	if err := store.ResetCycleNumber(ctx, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset cycle counter")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
