// Package research discovers, deduplicates and scores the sources an episode
// is grounded in.
package research

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientEvidence is returned when fewer distinct sources than the
// configured minimum survive deduplication.
var ErrInsufficientEvidence = errors.New("insufficient evidence")

// Query is what a provider is asked to search for.
type Query struct {
	Text     string
	Category string
	Subject  Subject
	Limit    int
}

// Document is a provider hit before scoring.
type Document struct {
	Title     string
	Authors   []string
	Published *time.Time
	DOI       string
	ArxivID   string
	URL       string
	Abstract  string
}

// Provider is one academic or news index.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Document, error)
}

// LinkSource fetches a caller supplied link into a Document.
type LinkSource interface {
	Fetch(ctx context.Context, rawURL string) (Document, error)
}
