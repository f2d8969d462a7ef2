// Package memstore keeps jobs and episodes in memory with the same
// semantics as the Postgres store. It backs STORE_BACKEND=memory and the
// pipeline tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"research-podcaster/internal/models"
)

// Store is safe for concurrent use. Sequence numbers are taken under a
// per category-code lock.
type Store struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	episodes map[string]*models.Episode
	seqLocks map[string]*sync.Mutex
	now      func() time.Time
}

func New() *Store {
	return &Store{
		jobs:     make(map[string]*models.Job),
		episodes: make(map[string]*models.Episode),
		seqLocks: make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// clone deep copies through JSON so callers never share nested state with
// the store. Fields hidden from JSON are copied by hand.
func cloneJob(j *models.Job) *models.Job {
	data, err := json.Marshal(j)
	if err != nil {
		panic(fmt.Sprintf("memstore: clone job: %v", err))
	}
	out := &models.Job{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("memstore: clone job: %v", err))
	}
	if j.Sequence != nil {
		seq := *j.Sequence
		out.Sequence = &seq
	}
	if j.TaskID != nil {
		id := *j.TaskID
		out.TaskID = &id
	}
	return out
}

func cloneEpisode(e *models.Episode) *models.Episode {
	out := *e
	out.References = append(models.References(nil), e.References...)
	if e.FeedSubmittedAt != nil {
		at := *e.FeedSubmittedAt
		out.FeedSubmittedAt = &at
	}
	return &out
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) GetJobByFilename(ctx context.Context, filename string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.CanonicalFilename != nil && *j.CanonicalFilename == filename {
			return cloneJob(j), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Category != "" && j.Category != filter.Category {
			continue
		}
		out = append(out, *cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Transition(ctx context.Context, id string, from, to models.Status, update models.JobUpdate) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if j.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", models.ErrStatusConflict, id, j.Status, from)
	}
	next := cloneJob(j)
	next.Status = to
	if update.ResearchContext != nil {
		rc := *update.ResearchContext
		next.ResearchContext = &rc
	}
	if update.Result != nil {
		r := *update.Result
		next.Result = &r
	}
	next.UpdatedAt = s.now()
	s.jobs[id] = cloneJob(next)
	return next, nil
}

func (s *Store) seqLock(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.seqLocks[code]
	if !ok {
		l = &sync.Mutex{}
		s.seqLocks[code] = l
	}
	return l
}

func (s *Store) AssignCanonicalFilename(ctx context.Context, id, prefix, code string, width int) (string, error) {
	lock := s.seqLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", models.ErrNotFound
	}
	if j.CanonicalFilename != nil {
		return *j.CanonicalFilename, nil
	}
	if j.Status != models.StatusGeneratingContent {
		return "", fmt.Errorf("%w: job %s is %s", models.ErrStatusConflict, id, j.Status)
	}
	highest := 0
	for _, other := range s.jobs {
		if other.Sequence != nil && other.CanonicalFilename != nil &&
			sequenceCode(*other.CanonicalFilename, prefix) == code && *other.Sequence > highest {
			highest = *other.Sequence
		}
	}
	seq := highest + 1
	name := models.CanonicalFilename(prefix, code, seq, width)
	j.CanonicalFilename = &name
	j.Sequence = &seq
	j.UpdatedAt = s.now()
	return name, nil
}

// sequenceCode extracts <code> from <prefix>-<code>-<digits>.
func sequenceCode(filename, prefix string) string {
	rest := filename
	if len(rest) <= len(prefix)+1 || rest[:len(prefix)+1] != prefix+"-" {
		return ""
	}
	rest = rest[len(prefix)+1:]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '-' {
			return rest[:i]
		}
	}
	return ""
}

func (s *Store) FailJob(ctx context.Context, id string, kind models.ErrorKind, message string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is already %s", models.ErrStatusConflict, id, j.Status)
	}
	j.Status = models.StatusFailed
	j.ErrorKind = &kind
	j.Error = &message
	j.UpdatedAt = s.now()
	return cloneJob(j), nil
}

func (s *Store) SetTaskID(ctx context.Context, id, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	j.TaskID = &taskID
	return nil
}
