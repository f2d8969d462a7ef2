package pipeline

import (
	"context"

	"research-podcaster/internal/models"
)

// JobStore persists jobs. Both the Postgres store and the in-memory store
// implement it.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobByFilename(ctx context.Context, filename string) (*models.Job, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error)
	// Transition moves the job from → to only if it is still in from,
	// writing update in the same step. It returns models.ErrStatusConflict
	// otherwise.
	Transition(ctx context.Context, id string, from, to models.Status, update models.JobUpdate) (*models.Job, error)
	// AssignCanonicalFilename atomically takes the next sequence number for
	// code and stores the filename on the job. A job that already has a
	// filename gets it back unchanged.
	AssignCanonicalFilename(ctx context.Context, id, prefix, code string, width int) (string, error)
	// FailJob marks a non-terminal job failed.
	FailJob(ctx context.Context, id string, kind models.ErrorKind, message string) (*models.Job, error)
	SetTaskID(ctx context.Context, id, taskID string) error
}
