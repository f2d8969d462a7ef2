package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/models"
)

// ListEpisodes is the public catalog. ?category= and ?in_feed=true narrow it.
func (h *Handlers) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.EpisodeFilter{Category: q.Get("category"), Limit: 100}
	if v := q.Get("in_feed"); v != "" {
		inFeed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "in_feed must be true or false")
			return
		}
		filter.InFeedOnly = inFeed
	}
	episodes, err := h.Catalog.ListEpisodes(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

func (h *Handlers) GetEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Catalog.GetEpisode(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handlers) PromoteEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Publisher.Promote(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handlers) UnpromoteEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.Publisher.Unpromote(r.Context(), mux.Vars(r)["filename"]); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SubmitToFeed(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Publisher.SubmitToFeed(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handlers) RemoveFromFeed(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Publisher.RemoveFromFeed(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handlers) RebuildFeed(w http.ResponseWriter, r *http.Request) {
	n, err := h.Publisher.RebuildFeed(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	log.Info().Int("episodes", n).Msg("Feed rebuilt on request")
	writeJSON(w, http.StatusOK, map[string]int{"episodes": n})
}
