package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// GetFeed serves the distribution feed document written by the publisher.
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.FeedPath)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("path", h.FeedPath).Msg("Error opening feed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	http.ServeContent(w, r, "feed.xml", info.ModTime(), f)
}

// ServeAudioFile serves locally stored episode audio.
func (h *Handlers) ServeAudioFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") || !strings.HasSuffix(filename, ".mp3") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	filePath := filepath.Join(h.AudioStoragePath, filename)
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, filePath)
}
