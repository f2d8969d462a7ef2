package db

import (
	"context"
	"fmt"
	"strings"

	"research-podcaster/internal/models"
)

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	query := `
		INSERT INTO jobs (id, topic, category, expertise_level, duration_hint, voices, source_links, subscriber_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := s.db.QueryRowxContext(ctx, query,
		job.ID, job.Topic, job.Category, job.ExpertiseLevel, job.DurationHint,
		job.Voices, job.SourceLinks, job.SubscriberID, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job := &models.Job{}
	if err := s.db.GetContext(ctx, job, "SELECT * FROM jobs WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

func (s *Store) GetJobByFilename(ctx context.Context, filename string) (*models.Job, error) {
	job := &models.Job{}
	if err := s.db.GetContext(ctx, job, "SELECT * FROM jobs WHERE canonical_filename = $1", filename); err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	query := "SELECT * FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	jobs := []models.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Transition is a compare-and-set on status. When no row matches, a second
// read tells a missing job from one that moved on.
func (s *Store) Transition(ctx context.Context, id string, from, to models.Status, update models.JobUpdate) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $3,
			research_context = COALESCE($4::jsonb, research_context),
			result = COALESCE($5::jsonb, result),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING *`
	job := &models.Job{}
	err := s.db.GetContext(ctx, job, query, id, from, to, update.ResearchContext, update.Result)
	if err == nil {
		return job, nil
	}
	if notFound(err) != models.ErrNotFound {
		return nil, fmt.Errorf("transition job %s: %w", id, err)
	}
	return nil, s.statusMismatch(ctx, id, from)
}

func (s *Store) statusMismatch(ctx context.Context, id string, expected models.Status) error {
	var current models.Status
	if err := s.db.GetContext(ctx, &current, "SELECT status FROM jobs WHERE id = $1", id); err != nil {
		return notFound(err)
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", models.ErrStatusConflict, id, current, expected)
}

func (s *Store) FailJob(ctx context.Context, id string, kind models.ErrorKind, message string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'failed', error_kind = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
		RETURNING *`
	job := &models.Job{}
	err := s.db.GetContext(ctx, job, query, id, kind, message)
	if err == nil {
		return job, nil
	}
	if notFound(err) != models.ErrNotFound {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}
	var current models.Status
	if err := s.db.GetContext(ctx, &current, "SELECT status FROM jobs WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return nil, fmt.Errorf("%w: job %s is already %s", models.ErrStatusConflict, id, current)
}

func (s *Store) SetTaskID(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE jobs SET task_id = $2 WHERE id = $1", id, taskID)
	if err != nil {
		return fmt.Errorf("set task id for job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}
