// Package feed renders the distribution feed from the episodes submitted to
// it and writes the document to disk atomically.
package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"research-podcaster/internal/config"
	"research-podcaster/internal/models"
)

// Writer owns the feed document at Path.
type Writer struct {
	path    string
	baseURL string
	channel config.Feed
	now     func() time.Time
}

func NewWriter(path, baseURL string, channel config.Feed) *Writer {
	return &Writer{path: path, baseURL: strings.TrimRight(baseURL, "/"), channel: channel, now: time.Now}
}

// Path is where the feed document lives.
func (w *Writer) Path() string { return w.path }

// Render builds the RSS document. Every item carries the episode's
// references, all of which trace to its research sources.
func (w *Writer) Render(episodes []models.Episode) ([]byte, error) {
	link := w.channel.Link
	if link == "" {
		link = w.baseURL
	}
	built := w.now()
	var latest *time.Time
	for i := range episodes {
		if at := pubDate(&episodes[i]); latest == nil || at.After(*latest) {
			latest = &at
		}
	}
	if latest == nil {
		latest = &built
	}

	p := podcast.New(w.channel.Title, link, w.channel.Description, latest, &built)
	p.IAuthor = w.channel.Author
	p.AddAtomLink(w.baseURL + "/feed.xml")
	p.Language = "en-us"

	for i := range episodes {
		ep := &episodes[i]
		at := pubDate(ep)
		item := podcast.Item{
			Title:       ep.Title,
			Description: itemDescription(ep),
			Link:        fmt.Sprintf("%s/api/episodes/%s", w.baseURL, ep.CanonicalFilename),
			GUID:        ep.CanonicalFilename,
			PubDate:     &at,
		}
		item.AddEnclosure(ep.AudioURL, podcast.MP3, ep.AudioSizeBytes)
		item.AddDuration(int64(ep.DurationSeconds))
		if _, err := p.AddItem(item); err != nil {
			return nil, fmt.Errorf("add feed item %s: %w", ep.CanonicalFilename, err)
		}
	}
	return p.Bytes(), nil
}

// Write renders episodes and replaces the feed document.
func (w *Writer) Write(episodes []models.Episode) error {
	data, err := w.Render(episodes)
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".feed-*.xml")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close feed: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("replace feed: %w", err)
	}
	return nil
}

func pubDate(ep *models.Episode) time.Time {
	if ep.FeedSubmittedAt != nil {
		return *ep.FeedSubmittedAt
	}
	return ep.PromotedAt
}

func itemDescription(ep *models.Episode) string {
	if len(ep.References) == 0 {
		return ep.Description
	}
	var b strings.Builder
	b.WriteString(ep.Description)
	b.WriteString("\n\nSources:\n")
	for _, r := range ep.References {
		fmt.Fprintf(&b, "[%d] %s %s\n", r.Index, r.Title, r.Identifier)
	}
	return strings.TrimRight(b.String(), "\n")
}
