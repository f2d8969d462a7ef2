package db_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/db"
	"research-podcaster/internal/models"
	"research-podcaster/internal/test"
)

var jobColumns = []string{
	"id", "topic", "category", "expertise_level", "duration_hint", "voices", "source_links",
	"subscriber_id", "status", "research_context", "canonical_filename", "sequence", "result",
	"error", "error_kind", "task_id", "created_at", "updated_at",
}

var episodeColumns = []string{
	"canonical_filename", "job_id", "category", "title", "description", "audio_url",
	"audio_size_bytes", "duration_seconds", "references", "submitted_to_feed",
	"feed_submitted_at", "promoted_at", "updated_at",
}

func jobRow(id string, status models.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobColumns).AddRow(
		id, "dark matter", "physics", "beginner", 10,
		[]byte(`{"host":{"name":"bryan","voice_id":"voice-a"},"expert":{"name":"bella","voice_id":"voice-b"}}`),
		"{https://example.org/a}", nil, string(status),
		[]byte(`{"subject":"physics","sources":[{"title":"A","doi_or_url":"https://doi.org/10.1/a"}]}`),
		nil, nil, nil, nil, nil, nil, now, now,
	)
}

func episodeRow(filename string, inFeed bool) *sqlmock.Rows {
	now := time.Now()
	var submittedAt interface{}
	if inFeed {
		submittedAt = now
	}
	return sqlmock.NewRows(episodeColumns).AddRow(
		filename, "job-1", "physics", "Dark matter", "About dark matter", "https://cdn.example.org/"+filename+".mp3",
		int64(1024), 60, []byte(`[{"index":1,"title":"A","identifier":"https://doi.org/10.1/a","provider":"arxiv"}]`),
		inFeed, submittedAt, now, now,
	)
}

func TestCreateJob(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs("job-1", "dark matter", "physics", "beginner", 10, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job := &models.Job{ID: "job-1", Topic: "dark matter", Category: "physics", ExpertiseLevel: "beginner", DurationHint: 10}
	require.NoError(t, store.CreateJob(context.Background(), job))
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(jobRow("job-1", models.StatusGeneratingContent))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGeneratingContent, job.Status)
	assert.Equal(t, "voice-b", job.Voices.Expert.VoiceID)
	assert.Equal(t, []string{"https://example.org/a"}, []string(job.SourceLinks))
	require.NotNil(t, job.ResearchContext)
	assert.Len(t, job.ResearchContext.Sources, 1)
	assert.Nil(t, job.Result)

	_, err = store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsBuildsFilter(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE status = $1 AND category = $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs("failed", "physics", 5).
		WillReturnRows(jobRow("job-1", models.StatusFailed))

	jobs, err := store.ListJobs(context.Background(), models.JobFilter{Status: models.StatusFailed, Category: "physics", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("job-1", "pending", "researching", nil, nil).
		WillReturnRows(jobRow("job-1", models.StatusResearching))

	job, err := store.Transition(context.Background(), "job-1", models.StatusPending, models.StatusResearching, models.JobUpdate{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResearching, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionConflict(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("job-1", "researching", "generating_content", sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

	rc := &models.ResearchContext{Subject: "physics"}
	_, err := store.Transition(context.Background(), "job-1", models.StatusResearching, models.StatusGeneratingContent, models.JobUpdate{ResearchContext: rc})
	assert.ErrorIs(t, err, models.ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJobOnFinishedJob(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("job-1", "cancelled", "cancelled by admin").
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	_, err := store.FailJob(context.Background(), "job-1", models.ErrorCancelled, "cancelled by admin")
	assert.ErrorIs(t, err, models.ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignCanonicalFilename(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, canonical_filename FROM jobs WHERE id = $1 FOR UPDATE")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "canonical_filename"}).AddRow("generating_content", nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE canonical_filename ~ $2")).
		WithArgs("phys", "^ep-phys-[0-9]+$").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET canonical_filename = $2, sequence = $3")).
		WithArgs("job-1", "ep-phys-000007", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := store.AssignCanonicalFilename(context.Background(), "job-1", "ep", "phys", 6)
	require.NoError(t, err)
	assert.Equal(t, "ep-phys-000007", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignCanonicalFilenameIsIdempotent(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, canonical_filename FROM jobs").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "canonical_filename"}).AddRow("generating_content", "ep-phys-000003"))
	mock.ExpectRollback()

	name, err := store.AssignCanonicalFilename(context.Background(), "job-1", "ep", "phys", 6)
	require.NoError(t, err)
	assert.Equal(t, "ep-phys-000003", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignCanonicalFilenameConflicts(t *testing.T) {
	t.Run("unique violation", func(t *testing.T) {
		conn, mock := test.NewMockDB(t)
		store := db.New(conn)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT status, canonical_filename FROM jobs").
			WillReturnRows(sqlmock.NewRows([]string{"status", "canonical_filename"}).AddRow("generating_content", nil))
		mock.ExpectQuery("INSERT INTO category_sequences").
			WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(2))
		mock.ExpectExec("UPDATE jobs SET canonical_filename").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		_, err := store.AssignCanonicalFilename(context.Background(), "job-1", "ep", "phys", 6)
		assert.ErrorIs(t, err, models.ErrSequenceConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("job moved on", func(t *testing.T) {
		conn, mock := test.NewMockDB(t)
		store := db.New(conn)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT status, canonical_filename FROM jobs").
			WillReturnRows(sqlmock.NewRows([]string{"status", "canonical_filename"}).AddRow("failed", nil))
		mock.ExpectRollback()

		_, err := store.AssignCanonicalFilename(context.Background(), "job-1", "ep", "phys", 6)
		assert.ErrorIs(t, err, models.ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertEpisode(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectQuery("INSERT INTO episodes").
		WithArgs("ep-phys-000001", "job-1", "physics", "Dark matter", "About dark matter",
			"https://cdn.example.org/ep-phys-000001.mp3", int64(1024), 60, sqlmock.AnyArg()).
		WillReturnRows(episodeRow("ep-phys-000001", false))

	ep, err := store.UpsertEpisode(context.Background(), models.Episode{
		CanonicalFilename: "ep-phys-000001",
		JobID:             "job-1",
		Category:          "physics",
		Title:             "Dark matter",
		Description:       "About dark matter",
		AudioURL:          "https://cdn.example.org/ep-phys-000001.mp3",
		AudioSizeBytes:    1024,
		DurationSeconds:   60,
	})
	require.NoError(t, err)
	assert.False(t, ep.SubmittedToFeed)
	require.Len(t, ep.References, 1)
	assert.Equal(t, "https://doi.org/10.1/a", ep.References[0].Identifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFeedFlagCommitsWithFeedWrite(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE episodes").
		WithArgs("ep-phys-000001", true).
		WillReturnRows(episodeRow("ep-phys-000001", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM episodes WHERE submitted_to_feed ORDER BY promoted_at DESC")).
		WillReturnRows(episodeRow("ep-phys-000001", true))
	mock.ExpectCommit()

	var written []models.Episode
	ep, err := store.SetFeedFlag(context.Background(), "ep-phys-000001", true, func(eps []models.Episode) error {
		written = eps
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ep.SubmittedToFeed)
	require.Len(t, written, 1)
	assert.Equal(t, "ep-phys-000001", written[0].CanonicalFilename)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFeedFlagRollsBackOnFeedFailure(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE episodes").WillReturnRows(episodeRow("ep-phys-000001", false))
	mock.ExpectQuery("SELECT \\* FROM episodes").WillReturnRows(sqlmock.NewRows(episodeColumns))
	mock.ExpectRollback()

	failure := errors.New("disk full")
	_, err := store.SetFeedFlag(context.Background(), "ep-phys-000001", false, func([]models.Episode) error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEpisodeMissing(t *testing.T) {
	conn, mock := test.NewMockDB(t)
	store := db.New(conn)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM episodes WHERE canonical_filename = $1")).
		WithArgs("ep-phys-000009").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.DeleteEpisode(context.Background(), "ep-phys-000009"), models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Every mapped struct field needs a column, or SELECT * scans fail at runtime.
func TestMigrationDeclaresMappedColumns(t *testing.T) {
	schema, err := os.ReadFile(filepath.Join(test.ProjectRoot(), "migrations", "001_init.sql"))
	require.NoError(t, err)
	for _, model := range []interface{}{models.Job{}, models.Episode{}} {
		typ := reflect.TypeOf(model)
		for i := 0; i < typ.NumField(); i++ {
			col := typ.Field(i).Tag.Get("db")
			if col == "" {
				continue
			}
			assert.Regexp(t, `(?m)^\s+"?`+regexp.QuoteMeta(col)+`"?\s`, string(schema), "%s.%s", typ.Name(), col)
		}
	}
	assert.True(t, strings.Contains(string(schema), "category_sequences"))
}
