package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"research-podcaster/pkg/tasks"
)

// JobRunner executes one generation job to a terminal status.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// FeedRebuilder rewrites the distribution feed from the episode flags.
type FeedRebuilder interface {
	RebuildFeed(ctx context.Context) (int, error)
}

type TaskHandler struct {
	runner JobRunner
	feed   FeedRebuilder
}

func NewTaskHandler(runner JobRunner, feed FeedRebuilder) *TaskHandler {
	return &TaskHandler{runner: runner, feed: feed}
}

// Register wires every task type this handler serves.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeGeneratePodcast, h.HandleGeneratePodcastTask)
	mux.HandleFunc(tasks.TypeRebuildFeed, h.HandleRebuildFeedTask)
}

// HandleGeneratePodcastTask runs the pipeline. Phase failures are recorded
// on the job by the runner, so only store failures reach asynq.
func (h *TaskHandler) HandleGeneratePodcastTask(ctx context.Context, t *asynq.Task) error {
	p, err := tasks.ParseGeneratePodcastTask(t)
	if err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Info().Str("job_id", p.JobID).Msg("Processing job")
	if err := h.runner.Run(ctx, p.JobID); err != nil {
		return fmt.Errorf("run job %s: %w", p.JobID, err)
	}
	log.Info().Str("job_id", p.JobID).Msg("Finished job")
	return nil
}

func (h *TaskHandler) HandleRebuildFeedTask(ctx context.Context, t *asynq.Task) error {
	n, err := h.feed.RebuildFeed(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild feed: %w", err)
	}
	log.Info().Int("episodes", n).Msg("Feed rebuilt")
	return nil
}
