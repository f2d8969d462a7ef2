// Package handlers serves the job submission API, the public catalog, the
// admin operations and the feed and audio files.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/middleware"
	"research-podcaster/internal/models"
	"research-podcaster/pkg/tasks"
)

// JobStore is the part of the job store the API uses.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error)
	FailJob(ctx context.Context, id string, kind models.ErrorKind, message string) (*models.Job, error)
	SetTaskID(ctx context.Context, id, taskID string) error
}

// Catalog reads promoted episodes.
type Catalog interface {
	GetEpisode(ctx context.Context, filename string) (*models.Episode, error)
	ListEpisodes(ctx context.Context, filter models.EpisodeFilter) ([]models.Episode, error)
}

// Publisher changes promotion and feed membership.
type Publisher interface {
	Promote(ctx context.Context, filename string) (*models.Episode, error)
	Unpromote(ctx context.Context, filename string) error
	SubmitToFeed(ctx context.Context, filename string) (*models.Episode, error)
	RemoveFromFeed(ctx context.Context, filename string) (*models.Episode, error)
	RebuildFeed(ctx context.Context) (int, error)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Jobs        JobStore
	Catalog     Catalog
	Publisher   Publisher
	AsynqClient tasks.TaskEnqueuer
	Canceler    tasks.TaskCanceler
	// Aliases are the speaker name aliases, used to reject voice selections
	// the segmenter could not tell apart.
	Aliases          map[string][]string
	AudioStoragePath string
	FeedPath         string
}

type Handlers struct {
	Deps
}

func New(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}

// Router wires every route. Submission goes through limiter when it is not
// nil; the admin routes require adminToken.
func (h *Handlers) Router(adminToken string, limiter *middleware.RateLimiterMiddleware) *mux.Router {
	r := mux.NewRouter()

	var submit http.Handler = http.HandlerFunc(h.PostJob)
	if limiter != nil {
		submit = limiter.Middleware(submit)
	}
	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/jobs", submit).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/episodes", h.ListEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/episodes/{filename}", h.GetEpisode).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(adminToken))
	admin.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet)
	admin.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods(http.MethodPost)
	admin.HandleFunc("/episodes/{filename}/promotion", h.PromoteEpisode).Methods(http.MethodPost)
	admin.HandleFunc("/episodes/{filename}/promotion", h.UnpromoteEpisode).Methods(http.MethodDelete)
	admin.HandleFunc("/episodes/{filename}/feed", h.SubmitToFeed).Methods(http.MethodPost)
	admin.HandleFunc("/episodes/{filename}/feed", h.RemoveFromFeed).Methods(http.MethodDelete)
	admin.HandleFunc("/feed/rebuild", h.RebuildFeed).Methods(http.MethodPost)

	r.HandleFunc("/feed.xml", h.GetFeed).Methods(http.MethodGet)
	r.HandleFunc("/audio/{filename}", h.ServeAudioFile).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store and publisher errors to responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrStatusConflict):
		writeError(w, http.StatusConflict, "Job is already finished")
	case errors.Is(err, models.ErrNotPromotable):
		writeError(w, http.StatusConflict, "Job has not produced a publishable episode")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
