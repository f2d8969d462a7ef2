package pipeline

import (
	"context"
	"errors"
	"fmt"

	"research-podcaster/internal/audio"
	"research-podcaster/internal/content"
	"research-podcaster/internal/models"
	"research-podcaster/internal/research"
	"research-podcaster/internal/retry"
	"research-podcaster/internal/script"
)

// PhaseError is a failure of one pipeline phase with its typed reason.
type PhaseError struct {
	Phase models.Status
	Kind  models.ErrorKind
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// KindOf maps an error returned by a phase to the job's error kind.
func KindOf(err error) models.ErrorKind {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) && phaseErr.Kind != "" {
		return phaseErr.Kind
	}
	switch {
	case errors.Is(err, research.ErrInsufficientEvidence):
		return models.ErrorInsufficientEvidence
	case errors.Is(err, content.ErrGenerationFailed):
		return models.ErrorContentGenerationFailed
	case errors.Is(err, script.ErrParse):
		return models.ErrorScriptParse
	case errors.Is(err, audio.ErrSynthesisFailed):
		return models.ErrorSynthesisFailed
	case errors.Is(err, models.ErrSequenceConflict):
		return models.ErrorSequenceAssignmentConflict
	case errors.Is(err, context.Canceled):
		return models.ErrorCancelled
	case errors.Is(err, retry.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.ErrorProviderTimeout
	}
	return models.ErrorInternal
}
