// Package publisher owns episode promotion and distribution feed
// membership. Episodes are the only authoritative record of both.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"research-podcaster/internal/models"
)

// EpisodeStore persists the public catalog.
type EpisodeStore interface {
	UpsertEpisode(ctx context.Context, ep models.Episode) (*models.Episode, error)
	GetEpisode(ctx context.Context, filename string) (*models.Episode, error)
	ListEpisodes(ctx context.Context, filter models.EpisodeFilter) ([]models.Episode, error)
	DeleteEpisode(ctx context.Context, filename string) error
	// SetFeedFlag updates submitted_to_feed and runs commit with the new
	// feed membership in the same transaction. A failing commit rolls the
	// flag back.
	SetFeedFlag(ctx context.Context, filename string, inFeed bool, commit func([]models.Episode) error) (*models.Episode, error)
}

// JobLookup finds the job behind a canonical filename.
type JobLookup interface {
	GetJobByFilename(ctx context.Context, filename string) (*models.Job, error)
}

// FeedWriter replaces the distribution feed document.
type FeedWriter interface {
	Write(episodes []models.Episode) error
}

type Publisher struct {
	jobs     JobLookup
	episodes EpisodeStore
	feed     FeedWriter
}

func New(jobs JobLookup, episodes EpisodeStore, feed FeedWriter) *Publisher {
	return &Publisher{jobs: jobs, episodes: episodes, feed: feed}
}

// PromoteJob creates or refreshes the episode of a completed job. An
// episode that is already in the feed gets its feed entry refreshed too.
func (p *Publisher) PromoteJob(ctx context.Context, job *models.Job) (*models.Episode, error) {
	ep, err := models.EpisodeFromJob(job)
	if err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}
	saved, err := p.episodes.UpsertEpisode(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", ep.CanonicalFilename, err)
	}
	if saved.SubmittedToFeed {
		if saved, err = p.episodes.SetFeedFlag(ctx, saved.CanonicalFilename, true, p.feed.Write); err != nil {
			return nil, fmt.Errorf("refresh feed entry %s: %w", ep.CanonicalFilename, err)
		}
	}
	log.Info().Str("canonical_filename", saved.CanonicalFilename).Str("job_id", job.ID).Msg("Episode promoted")
	return saved, nil
}

// Promote (re)promotes the job that owns filename.
func (p *Publisher) Promote(ctx context.Context, filename string) (*models.Episode, error) {
	job, err := p.jobs.GetJobByFilename(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", filename, err)
	}
	return p.PromoteJob(ctx, job)
}

// Unpromote hides the episode. It is taken out of the feed first, then the
// episode record is deleted; the job is untouched. Unpromoting a missing
// episode is a no-op.
func (p *Publisher) Unpromote(ctx context.Context, filename string) error {
	ep, err := p.episodes.GetEpisode(ctx, filename)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unpromote %s: %w", filename, err)
	}
	if ep.SubmittedToFeed {
		if _, err := p.episodes.SetFeedFlag(ctx, filename, false, p.feed.Write); err != nil {
			return fmt.Errorf("unpromote %s: remove from feed: %w", filename, err)
		}
	}
	if err := p.episodes.DeleteEpisode(ctx, filename); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("unpromote %s: %w", filename, err)
	}
	log.Info().Str("canonical_filename", filename).Msg("Episode unpromoted")
	return nil
}

// SubmitToFeed adds the episode to the distribution feed, promoting the job
// first when there is no episode yet.
func (p *Publisher) SubmitToFeed(ctx context.Context, filename string) (*models.Episode, error) {
	ep, err := p.episodes.GetEpisode(ctx, filename)
	if errors.Is(err, models.ErrNotFound) {
		if ep, err = p.Promote(ctx, filename); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("submit %s: %w", filename, err)
	}
	if ep.SubmittedToFeed {
		return ep, nil
	}
	ep, err = p.episodes.SetFeedFlag(ctx, filename, true, p.feed.Write)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", filename, err)
	}
	log.Info().Str("canonical_filename", filename).Msg("Episode submitted to feed")
	return ep, nil
}

// RemoveFromFeed clears the feed flag and entry. The episode stays listed.
func (p *Publisher) RemoveFromFeed(ctx context.Context, filename string) (*models.Episode, error) {
	ep, err := p.episodes.GetEpisode(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("remove %s from feed: %w", filename, err)
	}
	if !ep.SubmittedToFeed {
		return ep, nil
	}
	ep, err = p.episodes.SetFeedFlag(ctx, filename, false, p.feed.Write)
	if err != nil {
		return nil, fmt.Errorf("remove %s from feed: %w", filename, err)
	}
	log.Info().Str("canonical_filename", filename).Msg("Episode removed from feed")
	return ep, nil
}

// RebuildFeed rewrites the feed document from the episode flags.
func (p *Publisher) RebuildFeed(ctx context.Context) (int, error) {
	eps, err := p.episodes.ListEpisodes(ctx, models.EpisodeFilter{InFeedOnly: true})
	if err != nil {
		return 0, fmt.Errorf("rebuild feed: %w", err)
	}
	if err := p.feed.Write(eps); err != nil {
		return 0, fmt.Errorf("rebuild feed: %w", err)
	}
	return len(eps), nil
}
