package db

import (
	"context"
	"fmt"
	"strings"

	"research-podcaster/internal/models"
)

// feedLockKey serializes feed membership changes so each commit sees the
// membership it produced.
const feedLockKey = 72019

func (s *Store) UpsertEpisode(ctx context.Context, ep models.Episode) (*models.Episode, error) {
	query := `
		INSERT INTO episodes (canonical_filename, job_id, category, title, description, audio_url,
			audio_size_bytes, duration_seconds, "references")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (canonical_filename) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			category = EXCLUDED.category,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			audio_url = EXCLUDED.audio_url,
			audio_size_bytes = EXCLUDED.audio_size_bytes,
			duration_seconds = EXCLUDED.duration_seconds,
			"references" = EXCLUDED."references",
			updated_at = NOW()
		RETURNING *`
	saved := &models.Episode{}
	err := s.db.GetContext(ctx, saved, query,
		ep.CanonicalFilename, ep.JobID, ep.Category, ep.Title, ep.Description, ep.AudioURL,
		ep.AudioSizeBytes, ep.DurationSeconds, ep.References)
	if err != nil {
		return nil, fmt.Errorf("upsert episode %s: %w", ep.CanonicalFilename, err)
	}
	return saved, nil
}

func (s *Store) GetEpisode(ctx context.Context, filename string) (*models.Episode, error) {
	ep := &models.Episode{}
	if err := s.db.GetContext(ctx, ep, "SELECT * FROM episodes WHERE canonical_filename = $1", filename); err != nil {
		return nil, notFound(err)
	}
	return ep, nil
}

func (s *Store) ListEpisodes(ctx context.Context, filter models.EpisodeFilter) ([]models.Episode, error) {
	query, args := episodeQuery(filter)
	episodes := []models.Episode{}
	if err := s.db.SelectContext(ctx, &episodes, query, args...); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return episodes, nil
}

func episodeQuery(filter models.EpisodeFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filter.InFeedOnly {
		where = append(where, "submitted_to_feed")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	query := "SELECT * FROM episodes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY promoted_at DESC, canonical_filename DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Store) DeleteEpisode(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM episodes WHERE canonical_filename = $1", filename)
	if err != nil {
		return fmt.Errorf("delete episode %s: %w", filename, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetFeedFlag writes the flag and runs commit with the resulting feed
// membership before the transaction commits. A commit error rolls back.
func (s *Store) SetFeedFlag(ctx context.Context, filename string, inFeed bool, commit func([]models.Episode) error) (*models.Episode, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin feed tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", feedLockKey); err != nil {
		return nil, fmt.Errorf("lock feed: %w", err)
	}
	ep := &models.Episode{}
	err = tx.GetContext(ctx, ep, `
		UPDATE episodes
		SET submitted_to_feed = $2,
			feed_submitted_at = CASE WHEN $2 THEN COALESCE(feed_submitted_at, NOW()) ELSE NULL END,
			updated_at = NOW()
		WHERE canonical_filename = $1
		RETURNING *`, filename, inFeed)
	if err != nil {
		return nil, notFound(err)
	}
	if commit != nil {
		query, args := episodeQuery(models.EpisodeFilter{InFeedOnly: true})
		inFeedList := []models.Episode{}
		if err := tx.SelectContext(ctx, &inFeedList, query, args...); err != nil {
			return nil, fmt.Errorf("list feed episodes: %w", err)
		}
		if err := commit(inFeedList); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit feed flag for %s: %w", filename, err)
	}
	return ep, nil
}
