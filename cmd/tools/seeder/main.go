package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/catalog"
	"github.com/noah-isme/dansestudio/internal/db"
)

// Seeds the default pricing packages into pricing_packages.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	pkgs := catalog.DefaultPackages()
	if err := (catalog.PostgresProvider{Pool: pool}).Upsert(ctx, pkgs); err != nil {
		logger.Fatal().Err(err).Msg("seed pricing packages")
	}
	logger.Info().Int("packages", len(pkgs)).Msg("seeding completed")
}
