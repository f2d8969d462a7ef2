package models

import "errors"

var (
	// ErrNotFound is returned by stores for a missing job or episode.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict means the job was not in the expected status, usually
	// because it was cancelled or another worker moved it.
	ErrStatusConflict = errors.New("job status changed concurrently")
	// ErrSequenceConflict is a lost race on a category sequence number.
	ErrSequenceConflict = errors.New("sequence assignment conflict")
)

// JobUpdate is what a phase transition writes alongside the new status.
// Nil fields are left unchanged.
type JobUpdate struct {
	ResearchContext *ResearchContext
	Result          *Result
}

// JobFilter narrows ListJobs. Zero values mean no filter.
type JobFilter struct {
	Status   Status
	Category string
	Limit    int
}

// EpisodeFilter narrows ListEpisodes.
type EpisodeFilter struct {
	Category   string
	InFeedOnly bool
	Limit      int
}
