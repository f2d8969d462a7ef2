// Package pipeline drives one job through research, content generation,
// segmentation and synthesis, enforcing the job state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/audio"
	"research-podcaster/internal/config"
	"research-podcaster/internal/content"
	"research-podcaster/internal/models"
	"research-podcaster/internal/script"
)

const sequenceAttempts = 3

// Researcher gathers sources for a topic.
type Researcher interface {
	Discover(ctx context.Context, topic, category string, links []string, depth int) (models.ResearchContext, error)
}

// ContentGenerator writes the script from a research context.
type ContentGenerator interface {
	Generate(ctx context.Context, topic string, rc models.ResearchContext, style content.StyleParams) (*content.Content, error)
}

// Synthesizer renders and stores the episode audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, name string, segments []models.Segment) (*audio.Track, error)
}

// Promoter publishes a completed job to the catalog.
type Promoter interface {
	PromoteJob(ctx context.Context, job *models.Job) (*models.Episode, error)
}

// Settings are the tuning parameters the runner needs.
type Settings struct {
	MinSources int
	Naming     config.Naming
	Aliases    map[string][]string
	// CancelPoll is how often a running job checks whether it was cancelled.
	// Zero disables polling; the status check at each phase boundary remains.
	CancelPoll time.Duration
}

// Runner executes jobs. It holds no per job state and is safe for
// concurrent use.
type Runner struct {
	store     JobStore
	research  Researcher
	generator ContentGenerator
	audio     Synthesizer
	promoter  Promoter
	settings  Settings
}

func NewRunner(store JobStore, research Researcher, generator ContentGenerator, synth Synthesizer, promoter Promoter, settings Settings) *Runner {
	return &Runner{
		store:     store,
		research:  research,
		generator: generator,
		audio:     synth,
		promoter:  promoter,
		settings:  settings,
	}
}

// errStopped means the job left the expected status under us, which is how
// an external cancellation shows up at a phase boundary.
var errStopped = errors.New("job stopped externally")

// Run processes a pending job to a terminal status. Phase failures are
// recorded on the job and are not returned; the returned error is for
// failures of the store itself.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger := log.With().Str("job_id", job.ID).Str("category", job.Category).Logger()

	if job.Status.Terminal() {
		logger.Info().Str("status", string(job.Status)).Msg("Job already finished, skipping")
		return nil
	}
	if job.Status != models.StatusPending {
		// A previous worker died mid phase. Phases are not resumable.
		return r.fail(ctx, logger, job.ID, &PhaseError{
			Phase: job.Status,
			Kind:  models.ErrorInternal,
			Err:   fmt.Errorf("job was interrupted while %s", job.Status),
		})
	}

	ctx, stop := r.watchCancellation(ctx, job.ID)
	defer stop()

	err = r.run(ctx, logger, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStopped):
		logger.Info().Msg("Job was cancelled, abandoning")
		return nil
	default:
		if r.cancelled(job.ID) {
			logger.Info().Msg("Job was cancelled, abandoning")
			return nil
		}
		return r.fail(ctx, logger, job.ID, err)
	}
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, job *models.Job) error {
	job, err := r.advance(ctx, logger, job, models.StatusResearching, models.JobUpdate{})
	if err != nil {
		return err
	}

	// research
	rc, err := r.research.Discover(ctx, job.Topic, job.Category, job.SourceLinks, researchDepth(job.ExpertiseLevel))
	if err != nil {
		return &PhaseError{Phase: models.StatusResearching, Kind: KindOf(err), Err: err}
	}
	job, err = r.advance(ctx, logger, job, models.StatusGeneratingContent, models.JobUpdate{ResearchContext: &rc})
	if err != nil {
		return err
	}

	// content
	style := content.StyleParams{
		ExpertiseLevel:  job.ExpertiseLevel,
		DurationMinutes: job.DurationHint,
		Voices:          job.Voices,
	}
	generated, err := r.generator.Generate(ctx, job.Topic, *job.ResearchContext, style)
	if err != nil {
		return &PhaseError{Phase: models.StatusGeneratingContent, Kind: KindOf(err), Err: err}
	}
	segments, err := script.Segment(generated.Script, job.Voices, r.settings.Aliases)
	if err != nil {
		return &PhaseError{Phase: models.StatusGeneratingContent, Kind: models.ErrorScriptParse, Err: err}
	}
	filename, err := r.assignFilename(ctx, job)
	if err != nil {
		return err
	}
	result := &models.Result{
		Title:       generated.Title,
		Script:      generated.Script,
		Description: generated.Description,
		References:  generated.References,
		Attempts:    generated.Attempts,
	}
	job, err = r.advance(ctx, logger, job, models.StatusGeneratingAudio, models.JobUpdate{Result: result})
	if err != nil {
		return err
	}
	logger.Info().Str("canonical_filename", filename).Int("segments", len(segments)).
		Int("references", len(result.References)).Msg("Content ready")

	// audio
	track, err := r.audio.Synthesize(ctx, filename, segments)
	if err != nil {
		return &PhaseError{Phase: models.StatusGeneratingAudio, Kind: KindOf(err), Err: err}
	}
	done := *result
	done.AudioURL = track.URL
	done.DurationSeconds = track.DurationSeconds
	done.AudioSizeBytes = track.SizeBytes
	job, err = r.advance(ctx, logger, job, models.StatusCompleted, models.JobUpdate{Result: &done})
	if err != nil {
		return err
	}

	if _, err := r.promoter.PromoteJob(ctx, job); err != nil {
		// The job stays completed; an admin can promote it again.
		logger.Error().Err(err).Msg("Auto promotion failed")
	}
	return nil
}

// advance checks the guard and moves the job one step. A status conflict
// means somebody else, normally an admin cancelling, owns the job now.
func (r *Runner) advance(ctx context.Context, logger zerolog.Logger, job *models.Job, to models.Status, update models.JobUpdate) (*models.Job, error) {
	from := job.Status
	if !IsTransitionAllowed(from, to) {
		return nil, &PhaseError{Phase: from, Kind: models.ErrorInternal, Err: fmt.Errorf("transition %s -> %s is not allowed", from, to)}
	}
	if err := CheckGuard(to, update, r.settings.MinSources); err != nil {
		return nil, &PhaseError{Phase: from, Kind: guardKind(to), Err: err}
	}
	next, err := r.store.Transition(ctx, job.ID, from, to, update)
	if errors.Is(err, models.ErrStatusConflict) {
		return nil, errStopped
	}
	if err != nil {
		return nil, &PhaseError{Phase: from, Kind: models.ErrorInternal, Err: err}
	}
	logger.Info().Str("phase", string(to)).Str("from", string(from)).Msg("Job advanced")
	return next, nil
}

func guardKind(to models.Status) models.ErrorKind {
	switch to {
	case models.StatusGeneratingContent:
		return models.ErrorInsufficientEvidence
	case models.StatusGeneratingAudio:
		return models.ErrorContentGenerationFailed
	case models.StatusCompleted:
		return models.ErrorSynthesisFailed
	}
	return models.ErrorInternal
}

func (r *Runner) assignFilename(ctx context.Context, job *models.Job) (string, error) {
	code := r.settings.Naming.CategoryCode(job.Category)
	var lastErr error
	for attempt := 1; attempt <= sequenceAttempts; attempt++ {
		name, err := r.store.AssignCanonicalFilename(ctx, job.ID, r.settings.Naming.Prefix, code, r.settings.Naming.Width)
		if err == nil {
			return name, nil
		}
		if errors.Is(err, models.ErrStatusConflict) {
			return "", errStopped
		}
		if !errors.Is(err, models.ErrSequenceConflict) {
			return "", &PhaseError{Phase: models.StatusGeneratingContent, Kind: models.ErrorInternal, Err: err}
		}
		lastErr = err
		log.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("Sequence assignment conflict, retrying")
	}
	return "", &PhaseError{Phase: models.StatusGeneratingContent, Kind: models.ErrorSequenceAssignmentConflict, Err: lastErr}
}

func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, jobID string, err error) error {
	kind := KindOf(err)
	phase := ""
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		phase = string(phaseErr.Phase)
		err = phaseErr.Err
	}
	msg := humanMessage(kind, err)
	// The task context may already be done; the failure must still be written.
	_, ferr := r.store.FailJob(context.WithoutCancel(ctx), jobID, kind, msg)
	if ferr != nil && !errors.Is(ferr, models.ErrStatusConflict) {
		return fmt.Errorf("mark job %s failed: %w", jobID, ferr)
	}
	logger.Warn().Err(err).Str("phase", phase).Str("error_kind", string(kind)).Msg("Job failed")
	return nil
}

func humanMessage(kind models.ErrorKind, err error) string {
	var prefix string
	switch kind {
	case models.ErrorInsufficientEvidence:
		prefix = "Not enough verifiable research sources were found for this topic"
	case models.ErrorContentGenerationFailed:
		prefix = "No language model produced a valid, source grounded script"
	case models.ErrorScriptParse:
		prefix = "The generated script could not be split into speaker lines"
	case models.ErrorSynthesisFailed:
		prefix = "Audio synthesis failed"
	case models.ErrorProviderTimeout:
		prefix = "An external provider timed out"
	case models.ErrorSequenceAssignmentConflict:
		prefix = "Could not assign an episode number"
	default:
		prefix = "Internal error"
	}
	if err == nil {
		return prefix
	}
	return prefix + ": " + strings.TrimSpace(err.Error())
}

// watchCancellation cancels ctx once the job is failed by someone else, so
// in-flight provider calls are abandoned instead of awaited.
func (r *Runner) watchCancellation(ctx context.Context, jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if r.settings.CancelPoll <= 0 {
		return ctx, cancel
	}
	go func() {
		ticker := time.NewTicker(r.settings.CancelPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.cancelled(jobID) {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

func (r *Runner) cancelled(jobID string) bool {
	job, err := r.store.GetJob(context.Background(), jobID)
	return err == nil && job.Status == models.StatusFailed
}

func researchDepth(expertise string) int {
	switch strings.ToLower(expertise) {
	case "expert":
		return 3
	case "intermediate":
		return 2
	}
	return 1
}
