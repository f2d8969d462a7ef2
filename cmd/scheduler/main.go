package main

import (
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/config"
	"research-podcaster/internal/logging"
	"research-podcaster/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// rebuildSchedule is how often the feed document is rewritten from the
// episode flags.
const rebuildSchedule = "@every 1h"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	task, err := tasks.NewRebuildFeedTask()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create task")
	}

	if _, err := scheduler.Register(rebuildSchedule, task); err != nil {
		log.Fatal().Err(err).Msg("Could not register task")
	}

	log.Info().Str("commit", CommitSHA).Str("schedule", rebuildSchedule).Msg("Scheduler starting")
	if err := scheduler.Run(); err != nil {
		log.Fatal().Err(err).Msg("Could not run scheduler")
	}
}
