package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"research-podcaster/internal/app"
	"research-podcaster/internal/config"
	"research-podcaster/internal/handlers"
	"research-podcaster/internal/logging"
	"research-podcaster/internal/middleware"
	"research-podcaster/internal/worker"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	pub := app.NewPublisher(cfg, store)

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redis)
	defer client.Close()
	inspector := asynq.NewInspector(redis)
	defer inspector.Close()

	// The memory store is private to this process, so jobs must run here.
	if cfg.StoreBackend == "memory" {
		runner, release, err := app.NewRunner(cfg, store, pub)
		if err != nil {
			return err
		}
		defer release()

		srv := worker.NewServer(cfg.RedisAddr, cfg.WorkerConcurrency)
		mux := asynq.NewServeMux()
		worker.NewTaskHandler(runner, pub).Register(mux)
		if err := srv.Start(mux); err != nil {
			return err
		}
		defer srv.Shutdown()
		log.Info().Msg("In-process worker started")
	}

	if n, err := pub.RebuildFeed(ctx); err != nil {
		log.Error().Err(err).Msg("Initial feed rebuild failed")
	} else {
		log.Info().Int("episodes", n).Str("path", cfg.FeedPath).Msg("Feed written")
	}

	h := handlers.New(handlers.Deps{
		Jobs:             store,
		Catalog:          store,
		Publisher:        pub,
		AsynqClient:      client,
		Canceler:         inspector,
		Aliases:          cfg.Pipeline.Voices.Aliases,
		AudioStoragePath: cfg.AudioDir,
		FeedPath:         cfg.FeedPath,
	})
	limiter := middleware.NewRateLimiterMiddleware(rate.Limit(float64(cfg.SubmitPerMinute)/60), cfg.SubmitBurst)
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set; admin routes are disabled")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(cfg.AdminToken, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("commit", CommitSHA).Msg("Starting server")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
