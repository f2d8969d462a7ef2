package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/audio"
	"research-podcaster/internal/config"
	"research-podcaster/internal/content"
	"research-podcaster/internal/content/llm"
	"research-podcaster/internal/memstore"
	"research-podcaster/internal/models"
	"research-podcaster/internal/research"
	"research-podcaster/internal/retry"
)

// fakes

type staticProvider struct {
	name string
	docs []research.Document
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Search(ctx context.Context, q research.Query) ([]research.Document, error) {
	return p.docs, nil
}

var subjects = []string{"quasar", "pulsar", "magnetar", "blazar", "nebula", "comet", "meteor"}

func documents(n int) []research.Document {
	published := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]research.Document, n)
	for i := range docs {
		docs[i] = research.Document{
			Title:     fmt.Sprintf("Observations of %s emission", subjects[i]),
			Authors:   []string{"Dana " + subjects[i]},
			Published: &published,
			DOI:       fmt.Sprintf("10.5000/finding.%d", i+1),
		}
	}
	return docs
}

func researchSettings() config.Research {
	return config.Research{
		MinSources:             3,
		ProviderTimeoutSeconds: 2,
		MaxPerProvider:         8,
		MinLinkScore:           2,
		Providers:              []config.ResearchProvider{{Name: "arxiv", Weight: 4}},
	}
}

func aggregator(docs []research.Document) *research.Aggregator {
	return research.NewAggregator(researchSettings(), retry.Policy{Attempts: 1, Sleep: retry.NoSleep}, nil,
		staticProvider{name: "arxiv", docs: docs})
}

type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   []string
}

func (s *scriptedLLM) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, model)
	if err := s.errs[model]; err != nil {
		return "", err
	}
	queue := s.replies[model]
	if len(queue) == 0 {
		return "", errors.New("no reply")
	}
	reply := queue[0]
	if len(queue) > 1 {
		s.replies[model] = queue[1:]
	}
	return reply, nil
}

func reply(scriptText string, refs ...int) string {
	data, _ := json.Marshal(map[string]any{
		"title":       "Number theory today",
		"description": "What changed recently.",
		"script":      scriptText,
		"references":  refs,
	})
	return string(data)
}

const dialogue = "BRIAN: Welcome to the show.\nBELLA: Thanks, glad to be here.\nBRIAN: Let's start."

func generator(l llm.Completer, chain ...string) *content.Generator {
	entries := make([]config.ChainEntry, len(chain))
	for i, m := range chain {
		entries[i] = config.ChainEntry{Provider: "fake", Model: m}
	}
	return content.NewGenerator(entries, map[string]llm.Completer{"fake": l}, aliases(),
		retry.Policy{Attempts: 2, Sleep: retry.NoSleep}, 0)
}

func aliases() map[string][]string { return map[string][]string{"bryan": {"brian"}} }

type recordingSynth struct {
	mu       sync.Mutex
	segments map[string][]models.Segment
	err      error
}

func (s *recordingSynth) Synthesize(ctx context.Context, name string, segments []models.Segment) (*audio.Track, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.segments == nil {
		s.segments = make(map[string][]models.Segment)
	}
	s.segments[name] = segments
	return &audio.Track{URL: "https://cdn.example.org/" + name + ".mp3", Key: name + ".mp3", DurationSeconds: 42, SizeBytes: 672000}, nil
}

type recordingPromoter struct {
	mu       sync.Mutex
	promoted []string
}

func (p *recordingPromoter) PromoteJob(ctx context.Context, job *models.Job) (*models.Episode, error) {
	ep, err := models.EpisodeFromJob(job)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.promoted = append(p.promoted, ep.CanonicalFilename)
	p.mu.Unlock()
	return &ep, nil
}

type harness struct {
	store    *memstore.Store
	synth    *recordingSynth
	promoter *recordingPromoter
	runner   *Runner
}

func newHarness(researcher Researcher, gen ContentGenerator) *harness {
	h := &harness{store: memstore.New(), synth: &recordingSynth{}, promoter: &recordingPromoter{}}
	h.runner = NewRunner(h.store, researcher, gen, h.synth, h.promoter, Settings{
		MinSources: 3,
		Naming:     config.Naming{Prefix: "ep", Width: 6, CategoryCodes: map[string]string{"physics": "phys"}},
		Aliases:    aliases(),
		CancelPoll: 5 * time.Millisecond,
	})
	return h
}

func (h *harness) submit(t *testing.T, id, topic, category string) {
	t.Helper()
	require.NoError(t, h.store.CreateJob(context.Background(), &models.Job{
		ID:             id,
		Topic:          topic,
		Category:       category,
		ExpertiseLevel: "beginner",
		DurationHint:   5,
		Voices: models.VoiceSelection{
			Host:   models.Speaker{Name: "bryan", VoiceID: "voice-a"},
			Expert: models.Speaker{Name: "bella", VoiceID: "voice-b"},
		},
	}))
}

func (h *harness) job(t *testing.T, id string) *models.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

// scenarios

func TestInsufficientEvidenceStopsBeforeContent(t *testing.T) {
	l := &scriptedLLM{replies: map[string][]string{"m1": {reply(dialogue, 1)}}}
	h := newHarness(aggregator(nil), generator(l, "m1"))
	h.submit(t, "job-a", "recent advances in number theory", "mathematics")

	require.NoError(t, h.runner.Run(context.Background(), "job-a"))

	job := h.job(t, "job-a")
	assert.Equal(t, models.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, models.ErrorInsufficientEvidence, *job.ErrorKind)
	assert.NotEmpty(t, *job.Error)
	assert.Nil(t, job.ResearchContext)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.CanonicalFilename)
	assert.Empty(t, l.calls, "no content generated")
}

func TestFallbackChainCompletesJob(t *testing.T) {
	l := &scriptedLLM{
		errs: map[string]error{
			"primary":   &retry.StatusError{Provider: "fake", StatusCode: 404, Body: "model unavailable"},
			"secondary": &retry.StatusError{Provider: "fake", StatusCode: 400, Body: "bad request"},
		},
		replies: map[string][]string{"tertiary": {reply(dialogue, 1, 2, 5)}},
	}
	h := newHarness(aggregator(documents(5)), generator(l, "primary", "secondary", "tertiary"))
	h.submit(t, "job-b", "bounded gaps between primes", "mathematics")

	require.NoError(t, h.runner.Run(context.Background(), "job-b"))

	job := h.job(t, "job-b")
	require.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Attempts, 3)
	assert.Equal(t, "tertiary", job.Result.Attempts[2].Model)
	assert.Equal(t, content.OutcomeOK, job.Result.Attempts[2].Outcome)
	assert.Equal(t, []string{"primary", "secondary", "tertiary"}, l.calls)
	assert.Equal(t, "https://cdn.example.org/ep-math-000001.mp3", job.Result.AudioURL)
	assert.Equal(t, 42, job.Result.DurationSeconds)
	assert.Equal(t, []string{"ep-math-000001"}, h.promoter.promoted)
	assertTraceable(t, job)
}

func TestSegmentsUseCallerSelectedVoices(t *testing.T) {
	l := &scriptedLLM{replies: map[string][]string{"m1": {reply(dialogue, 1)}}}
	h := newHarness(aggregator(documents(3)), generator(l, "m1"))
	h.submit(t, "job-c", "dark matter", "physics")

	require.NoError(t, h.runner.Run(context.Background(), "job-c"))

	job := h.job(t, "job-c")
	require.Equal(t, models.StatusCompleted, job.Status)
	segments := h.synth.segments[*job.CanonicalFilename]
	require.Len(t, segments, 3)
	assert.Equal(t, "voice-a", segments[0].VoiceID)
	assert.Equal(t, "voice-b", segments[1].VoiceID)
	assert.Equal(t, "voice-a", segments[2].VoiceID)
	assert.Equal(t, "ep-phys-000001", *job.CanonicalFilename)
}

func TestConcurrentJobsGetSequentialFilenames(t *testing.T) {
	for _, n := range []int{2, 25} {
		t.Run(fmt.Sprintf("%d jobs", n), func(t *testing.T) {
			replies := make([]string, n)
			for i := range replies {
				replies[i] = reply(dialogue, 1)
			}
			l := &scriptedLLM{replies: map[string][]string{"m1": replies}}
			h := newHarness(aggregator(documents(4)), generator(l, "m1"))
			for i := 0; i < n; i++ {
				h.submit(t, fmt.Sprintf("job-%d", i), "neutrino oscillations", "physics")
			}

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					assert.NoError(t, h.runner.Run(context.Background(), id))
				}(fmt.Sprintf("job-%d", i))
			}
			wg.Wait()

			var names []string
			for i := 0; i < n; i++ {
				job := h.job(t, fmt.Sprintf("job-%d", i))
				require.Equal(t, models.StatusCompleted, job.Status)
				names = append(names, *job.CanonicalFilename)
			}
			sort.Strings(names)
			for i, name := range names {
				assert.Equal(t, models.CanonicalFilename("ep", "phys", i+1, 6), name)
			}
		})
	}
}

func TestScriptParseErrorBurnsNoSequence(t *testing.T) {
	stray := dialogue + "\nNARRATOR: Meanwhile, elsewhere."
	l := &scriptedLLM{replies: map[string][]string{"m1": {reply(stray, 1), reply(dialogue, 1)}}}
	h := newHarness(aggregator(documents(3)), generator(l, "m1"))
	h.submit(t, "job-1", "entanglement", "physics")
	h.submit(t, "job-2", "entanglement", "physics")

	require.NoError(t, h.runner.Run(context.Background(), "job-1"))
	require.NoError(t, h.runner.Run(context.Background(), "job-2"))

	failed := h.job(t, "job-1")
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, models.ErrorScriptParse, *failed.ErrorKind)
	assert.Nil(t, failed.CanonicalFilename)
	assert.Equal(t, "ep-phys-000001", *h.job(t, "job-2").CanonicalFilename)
}

func TestSynthesisFailureFailsJob(t *testing.T) {
	l := &scriptedLLM{replies: map[string][]string{"m1": {reply(dialogue, 1)}}}
	h := newHarness(aggregator(documents(3)), generator(l, "m1"))
	h.synth.err = fmt.Errorf("%w: segment 1: http 500", audio.ErrSynthesisFailed)
	h.submit(t, "job-s", "gravitational waves", "physics")

	require.NoError(t, h.runner.Run(context.Background(), "job-s"))

	job := h.job(t, "job-s")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, models.ErrorSynthesisFailed, *job.ErrorKind)
	assert.Empty(t, h.promoter.promoted)
	assert.Empty(t, job.Result.AudioURL, "partial audio is never published")
}

func TestContentExhaustionFailsJob(t *testing.T) {
	l := &scriptedLLM{errs: map[string]error{"m1": errors.New("boom"), "m2": errors.New("boom")}}
	h := newHarness(aggregator(documents(3)), generator(l, "m1", "m2"))
	h.submit(t, "job-x", "gravitational waves", "physics")

	require.NoError(t, h.runner.Run(context.Background(), "job-x"))

	job := h.job(t, "job-x")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, models.ErrorContentGenerationFailed, *job.ErrorKind)
	require.NotNil(t, job.ResearchContext)
	assert.GreaterOrEqual(t, len(job.ResearchContext.Sources), 3)
}

type blockingResearcher struct {
	started chan struct{}
}

func (b *blockingResearcher) Discover(ctx context.Context, topic, category string, links []string, depth int) (models.ResearchContext, error) {
	close(b.started)
	<-ctx.Done()
	return models.ResearchContext{}, ctx.Err()
}

func TestExternalCancellationAbandonsInFlightCalls(t *testing.T) {
	researcher := &blockingResearcher{started: make(chan struct{})}
	l := &scriptedLLM{}
	h := newHarness(researcher, generator(l, "m1"))
	h.submit(t, "job-cancel", "anything", "physics")

	done := make(chan error, 1)
	go func() { done <- h.runner.Run(context.Background(), "job-cancel") }()
	<-researcher.started
	_, err := h.store.FailJob(context.Background(), "job-cancel", models.ErrorCancelled, "cancelled by admin")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not abandon the in-flight call")
	}
	job := h.job(t, "job-cancel")
	assert.Equal(t, models.ErrorCancelled, *job.ErrorKind)
	assert.Empty(t, l.calls)
}

func TestInterruptedJobIsFailed(t *testing.T) {
	h := newHarness(aggregator(documents(3)), generator(&scriptedLLM{}, "m1"))
	h.submit(t, "job-i", "anything", "physics")
	_, err := h.store.Transition(context.Background(), "job-i", models.StatusPending, models.StatusResearching, models.JobUpdate{})
	require.NoError(t, err)

	require.NoError(t, h.runner.Run(context.Background(), "job-i"))

	job := h.job(t, "job-i")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, models.ErrorInternal, *job.ErrorKind)
}

func TestFinishedJobIsSkipped(t *testing.T) {
	h := newHarness(aggregator(documents(3)), generator(&scriptedLLM{}, "m1"))
	h.submit(t, "job-f", "anything", "physics")
	_, err := h.store.FailJob(context.Background(), "job-f", models.ErrorCancelled, "cancelled")
	require.NoError(t, err)

	require.NoError(t, h.runner.Run(context.Background(), "job-f"))
	assert.Equal(t, models.ErrorCancelled, *h.job(t, "job-f").ErrorKind)
}

type conflictingStore struct {
	*memstore.Store
	calls int
}

func (c *conflictingStore) AssignCanonicalFilename(ctx context.Context, id, prefix, code string, width int) (string, error) {
	c.calls++
	return "", models.ErrSequenceConflict
}

func TestSequenceConflictIsRetriedThenSurfaced(t *testing.T) {
	l := &scriptedLLM{replies: map[string][]string{"m1": {reply(dialogue, 1)}}}
	h := newHarness(aggregator(documents(3)), generator(l, "m1"))
	store := &conflictingStore{Store: h.store}
	h.runner.store = store
	h.submit(t, "job-q", "muons", "physics")

	require.NoError(t, h.runner.Run(context.Background(), "job-q"))

	assert.Equal(t, sequenceAttempts, store.calls)
	assert.Equal(t, models.ErrorSequenceAssignmentConflict, *h.job(t, "job-q").ErrorKind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, models.ErrorInsufficientEvidence, KindOf(fmt.Errorf("x: %w", research.ErrInsufficientEvidence)))
	assert.Equal(t, models.ErrorContentGenerationFailed, KindOf(&content.GenerationError{Err: content.ErrGenerationFailed}))
	assert.Equal(t, models.ErrorProviderTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, models.ErrorCancelled, KindOf(context.Canceled))
	assert.Equal(t, models.ErrorScriptParse, KindOf(&PhaseError{Kind: models.ErrorScriptParse, Err: errors.New("x")}))
	assert.Equal(t, models.ErrorInternal, KindOf(errors.New("x")))
}

// assertTraceable checks that every reference of a completed job is one of
// its research sources.
func assertTraceable(t *testing.T, job *models.Job) {
	t.Helper()
	require.NotNil(t, job.ResearchContext)
	known := make(map[string]bool)
	for _, s := range job.ResearchContext.Sources {
		known[s.DOIOrURL] = true
	}
	require.NotEmpty(t, job.Result.References)
	for _, ref := range job.Result.References {
		assert.True(t, known[ref.Identifier], "untraceable reference %s", ref.Identifier)
	}
}

func TestCompletedJobsSatisfyEvidenceAndTraceability(t *testing.T) {
	for sources := 0; sources <= 6; sources++ {
		l := &scriptedLLM{replies: map[string][]string{"m1": {reply(dialogue, 1, 2, 3)}}}
		h := newHarness(aggregator(documents(sources)), generator(l, "m1"))
		id := fmt.Sprintf("job-%d", sources)
		h.submit(t, id, "cosmic rays", "physics")

		require.NoError(t, h.runner.Run(context.Background(), id))

		job := h.job(t, id)
		if job.ResearchContext != nil {
			assert.GreaterOrEqual(t, len(job.ResearchContext.Sources), 3)
		}
		if sources < 3 {
			assert.Equal(t, models.StatusFailed, job.Status)
			continue
		}
		require.Equal(t, models.StatusCompleted, job.Status)
		assertTraceable(t, job)
	}
}
