package main

import (
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/app"
	"research-podcaster/internal/config"
	"research-podcaster/internal/logging"
	"research-podcaster/internal/worker"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.StoreBackend == "memory" {
		log.Fatal().Msg("The worker needs a shared store; with STORE_BACKEND=memory the server runs jobs itself")
	}

	store, err := app.OpenStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open store")
	}
	pub := app.NewPublisher(cfg, store)

	runner, release, err := app.NewRunner(cfg, store, pub)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not build pipeline")
	}
	defer release()

	srv := worker.NewServer(cfg.RedisAddr, cfg.WorkerConcurrency)
	mux := asynq.NewServeMux()
	worker.NewTaskHandler(runner, pub).Register(mux)

	log.Info().Str("commit", CommitSHA).Int("concurrency", cfg.WorkerConcurrency).Msg("Worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("Could not run worker")
	}
}
