package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/models"
	"research-podcaster/internal/pipeline"
	"research-podcaster/internal/script"
	"research-podcaster/pkg/tasks"
)

const (
	maxTopicRunes   = 300
	maxSourceLinks  = 10
	maxDurationHint = 60
	defaultDuration = 10
)

var expertiseLevels = map[string]bool{"beginner": true, "intermediate": true, "expert": true}

// categoryPattern keeps categories safe to derive filename codes from.
var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9 -]{0,40}$`)

type submitRequest struct {
	Topic          string                `json:"topic"`
	Category       string                `json:"category"`
	ExpertiseLevel string                `json:"expertise_level"`
	DurationHint   int                   `json:"duration_hint"`
	Voices         models.VoiceSelection `json:"voices"`
	SourceLinks    []string              `json:"source_links"`
	SubscriberID   string                `json:"subscriber_id"`
}

type jobResponse struct {
	ID                string            `json:"id"`
	Status            models.Status     `json:"status"`
	Topic             string            `json:"topic"`
	Category          string            `json:"category"`
	CanonicalFilename *string           `json:"canonical_filename"`
	Result            *models.Result    `json:"result,omitempty"`
	Error             *string           `json:"error,omitempty"`
	ErrorKind         *models.ErrorKind `json:"error_kind,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

func toJobResponse(job *models.Job) jobResponse {
	return jobResponse{
		ID:                job.ID,
		Status:            job.Status,
		Topic:             job.Topic,
		Category:          job.Category,
		CanonicalFilename: job.CanonicalFilename,
		Result:            job.Result,
		Error:             job.Error,
		ErrorKind:         job.ErrorKind,
		CreatedAt:         job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:         job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (req *submitRequest) normalize(aliases map[string][]string) error {
	req.Topic = strings.TrimSpace(req.Topic)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.ExpertiseLevel = strings.ToLower(strings.TrimSpace(req.ExpertiseLevel))
	if req.Topic == "" {
		return errors.New("topic is required")
	}
	if utf8.RuneCountInString(req.Topic) > maxTopicRunes {
		return fmt.Errorf("topic must be at most %d characters", maxTopicRunes)
	}
	if req.Category == "" {
		return errors.New("category is required")
	}
	if !categoryPattern.MatchString(req.Category) {
		return errors.New("category must start with a letter or digit and contain only letters, digits, spaces or hyphens (at most 41 characters)")
	}
	if req.ExpertiseLevel == "" {
		req.ExpertiseLevel = "beginner"
	}
	if !expertiseLevels[req.ExpertiseLevel] {
		return errors.New("expertise_level must be beginner, intermediate or expert")
	}
	if req.DurationHint == 0 {
		req.DurationHint = defaultDuration
	}
	if req.DurationHint < 1 || req.DurationHint > maxDurationHint {
		return fmt.Errorf("duration_hint must be between 1 and %d minutes", maxDurationHint)
	}
	if _, err := script.NewResolver(req.Voices, aliases); err != nil {
		return fmt.Errorf("voices: %w", err)
	}
	if len(req.SourceLinks) > maxSourceLinks {
		return fmt.Errorf("at most %d source_links are accepted", maxSourceLinks)
	}
	for _, link := range req.SourceLinks {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source link %q must be an http or https URL", link)
		}
	}
	return nil
}

// PostJob validates the request, stores a pending job and queues it. The
// job id is returned before any processing happens.
func (h *Handlers) PostJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := req.normalize(h.Aliases); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &models.Job{
		ID:             uuid.NewString(),
		Topic:          req.Topic,
		Category:       req.Category,
		ExpertiseLevel: req.ExpertiseLevel,
		DurationHint:   req.DurationHint,
		Voices:         req.Voices,
		SourceLinks:    req.SourceLinks,
		Status:         models.StatusPending,
	}
	if req.SubscriberID != "" {
		job.SubscriberID = &req.SubscriberID
	}
	if err := h.Jobs.CreateJob(r.Context(), job); err != nil {
		writeStoreError(w, r, err)
		return
	}

	if err := h.enqueue(r, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue job")
		if _, ferr := h.Jobs.FailJob(r.Context(), job.ID, models.ErrorInternal, "Internal error: the job could not be queued"); ferr != nil {
			log.Error().Err(ferr).Str("job_id", job.ID).Msg("Failed to mark unqueued job")
		}
		writeError(w, http.StatusServiceUnavailable, "Job queue unavailable")
		return
	}

	log.Info().Str("job_id", job.ID).Str("category", job.Category).Msg("Job submitted")
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": string(job.Status)})
}

func (h *Handlers) enqueue(r *http.Request, jobID string) error {
	task, err := tasks.NewGeneratePodcastTask(jobID)
	if err != nil {
		return err
	}
	info, err := h.AsynqClient.Enqueue(task)
	if err != nil {
		return err
	}
	if err := h.Jobs.SetTaskID(r.Context(), jobID, info.ID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Could not store task id")
	}
	return nil
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// ListJobs is the admin listing, filtered by ?status=, ?category= and
// ?limit=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.JobFilter{Category: q.Get("category"), Limit: 50}
	if s := q.Get("status"); s != "" {
		status, err := pipeline.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	jobs, err := h.Jobs.ListJobs(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i := range jobs {
		out[i] = toJobResponse(&jobs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelJob fails a running job with kind cancelled and asks asynq to stop
// its task. The runner notices either way and abandons in-flight calls.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.Jobs.FailJob(r.Context(), id, models.ErrorCancelled, "Cancelled by an administrator")
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if job.TaskID != nil && h.Canceler != nil {
		if err := h.Canceler.CancelProcessing(*job.TaskID); err != nil {
			// The task may not have started yet; the runner skips failed jobs.
			log.Warn().Err(err).Str("job_id", id).Str("task_id", *job.TaskID).Msg("Could not cancel task")
		}
	}
	log.Info().Str("job_id", id).Msg("Job cancelled")
	writeJSON(w, http.StatusOK, toJobResponse(job))
}
