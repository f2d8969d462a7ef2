package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotPromotable means the job has not produced a publishable episode.
var ErrNotPromotable = errors.New("job cannot be promoted")

// Episode is the public catalog entry for a completed job, keyed by its
// canonical filename. It is the only authoritative record of whether a job
// is listed and whether it is in the distribution feed.
type Episode struct {
	CanonicalFilename string     `db:"canonical_filename" json:"canonical_filename"`
	JobID             string     `db:"job_id" json:"job_id"`
	Category          string     `db:"category" json:"category"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	AudioURL          string     `db:"audio_url" json:"audio_url"`
	AudioSizeBytes    int64      `db:"audio_size_bytes" json:"audio_size_bytes"`
	DurationSeconds   int        `db:"duration_seconds" json:"duration_seconds"`
	References        References `db:"references" json:"references"`
	SubmittedToFeed   bool       `db:"submitted_to_feed" json:"submitted_to_feed"`
	FeedSubmittedAt   *time.Time `db:"feed_submitted_at" json:"feed_submitted_at,omitempty"`
	PromotedAt        time.Time  `db:"promoted_at" json:"promoted_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// References is the JSONB column type for an episode's citations.
type References []Reference

func (r References) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Reference(r))
}

func (r *References) Scan(src interface{}) error {
	return scanJSON(src, (*[]Reference)(r))
}

// EpisodeFromJob builds the catalog entry for a completed job.
func EpisodeFromJob(job *Job) (Episode, error) {
	if job.Status != StatusCompleted {
		return Episode{}, fmt.Errorf("%w: job %s is %s, not completed", ErrNotPromotable, job.ID, job.Status)
	}
	if job.CanonicalFilename == nil || *job.CanonicalFilename == "" {
		return Episode{}, fmt.Errorf("%w: job %s has no canonical filename", ErrNotPromotable, job.ID)
	}
	if job.Result == nil || job.Result.AudioURL == "" {
		return Episode{}, fmt.Errorf("%w: job %s has no audio", ErrNotPromotable, job.ID)
	}
	return Episode{
		CanonicalFilename: *job.CanonicalFilename,
		JobID:             job.ID,
		Category:          job.Category,
		Title:             job.Result.Title,
		Description:       job.Result.Description,
		AudioURL:          job.Result.AudioURL,
		AudioSizeBytes:    job.Result.AudioSizeBytes,
		DurationSeconds:   job.Result.DurationSeconds,
		References:        References(job.Result.References),
	}, nil
}
