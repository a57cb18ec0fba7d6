package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/db"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "migrate").Logger()
	_ = godotenv.Load()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	dir := db.Up
	if *down {
		dir = db.Down
	}
	if err := db.Migrate(url, dir, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}
