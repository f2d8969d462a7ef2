package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"research-podcaster/internal/models"
)

const uniqueViolation = "23505"

// AssignCanonicalFilename takes the next value of the code's counter and
// writes the filename in one transaction. The counter row is locked by the
// upsert, so concurrent jobs of the same code queue behind each other. A
// counter seen for the first time starts after the highest sequence
// already stored for that code.
func (s *Store) AssignCanonicalFilename(ctx context.Context, id, prefix, code string, width int) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin sequence tx: %w", err)
	}
	defer rollback(tx)

	var current struct {
		Status            models.Status `db:"status"`
		CanonicalFilename *string       `db:"canonical_filename"`
	}
	err = tx.GetContext(ctx, &current, "SELECT status, canonical_filename FROM jobs WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return "", notFound(err)
	}
	if current.CanonicalFilename != nil {
		return *current.CanonicalFilename, nil
	}
	if current.Status != models.StatusGeneratingContent {
		return "", fmt.Errorf("%w: job %s is %s", models.ErrStatusConflict, id, current.Status)
	}

	var seq int
	err = tx.GetContext(ctx, &seq, `
		INSERT INTO category_sequences (code, last_value)
		VALUES ($1, COALESCE((SELECT MAX(sequence) FROM jobs WHERE canonical_filename ~ $2), 0) + 1)
		ON CONFLICT (code) DO UPDATE SET last_value = category_sequences.last_value + 1
		RETURNING last_value`, code, sequencePattern(prefix, code))
	if err != nil {
		return "", sequenceError(code, err)
	}

	name := models.CanonicalFilename(prefix, code, seq, width)
	_, err = tx.ExecContext(ctx,
		"UPDATE jobs SET canonical_filename = $2, sequence = $3, updated_at = NOW() WHERE id = $1",
		id, name, seq)
	if err != nil {
		return "", sequenceError(code, err)
	}
	if err := tx.Commit(); err != nil {
		return "", sequenceError(code, err)
	}
	return name, nil
}

// sequencePattern matches exactly the filenames numbered under prefix and
// code, and not those of a longer code sharing its start.
func sequencePattern(prefix, code string) string {
	return "^" + regexp.QuoteMeta(prefix+"-"+code+"-") + "[0-9]+$"
}

func sequenceError(code string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: code %s: %v", models.ErrSequenceConflict, code, err)
	}
	return fmt.Errorf("assign sequence for %s: %w", code, err)
}
