package pipeline

import (
	"errors"
	"fmt"

	"research-podcaster/internal/models"
)

// validTransitions lists every allowed (from → to) pair. failed is reachable
// from every non-terminal state.
var validTransitions = map[models.Status][]models.Status{
	models.StatusPending:           {models.StatusResearching, models.StatusFailed},
	models.StatusResearching:       {models.StatusGeneratingContent, models.StatusFailed},
	models.StatusGeneratingContent: {models.StatusGeneratingAudio, models.StatusFailed},
	models.StatusGeneratingAudio:   {models.StatusCompleted, models.StatusFailed},
	// completed and failed are terminal
}

// ErrGuard is returned when a transition's precondition does not hold.
var ErrGuard = errors.New("transition guard failed")

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (models.Status, error) {
	st := models.Status(s)
	switch st {
	case models.StatusPending, models.StatusResearching, models.StatusGeneratingContent,
		models.StatusGeneratingAudio, models.StatusCompleted, models.StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to models.Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckGuard enforces the precondition of entering to with update applied.
func CheckGuard(to models.Status, update models.JobUpdate, minSources int) error {
	switch to {
	case models.StatusGeneratingContent:
		if update.ResearchContext == nil {
			return fmt.Errorf("%w: no research context", ErrGuard)
		}
		if n := len(update.ResearchContext.Sources); n < minSources {
			return fmt.Errorf("%w: %d sources, need %d", ErrGuard, n, minSources)
		}
	case models.StatusGeneratingAudio:
		r := update.Result
		if r == nil || r.Title == "" || r.Script == "" || r.Description == "" {
			return fmt.Errorf("%w: content is incomplete", ErrGuard)
		}
		if len(r.References) == 0 {
			return fmt.Errorf("%w: content has no references", ErrGuard)
		}
	case models.StatusCompleted:
		if update.Result == nil || update.Result.AudioURL == "" {
			return fmt.Errorf("%w: no audio url", ErrGuard)
		}
	}
	return nil
}
