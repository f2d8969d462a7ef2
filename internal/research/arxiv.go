package research

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"research-podcaster/internal/retry"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// ArxivProvider searches the arXiv preprint archive. arXiv asks clients to
// keep to one request every three seconds.
type ArxivProvider struct {
	httpSource
	BaseURL string
}

// NewArxivProvider constructs the provider with the polite request rate.
func NewArxivProvider(client *http.Client) *ArxivProvider {
	return &ArxivProvider{
		httpSource: newHTTPSource("arxiv", client, rate.NewLimiter(rate.Every(3*time.Second), 1)),
		BaseURL:    arxivBaseURL,
	}
}

func (p *ArxivProvider) Name() string { return "arxiv" }

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	DOI       string        `xml:"http://arxiv.org/schemas/atom doi"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

func (p *ArxivProvider) Search(ctx context.Context, q Query) ([]Document, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+q.Text)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprint(q.Limit))
	params.Set("sortBy", "relevance")

	body, err := p.get(ctx, p.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, retry.Permanent(fmt.Errorf("arxiv: decode feed: %w", err))
	}

	docs := make([]Document, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		authors := make([]string, 0, len(e.Authors))
		for _, a := range e.Authors {
			authors = append(authors, strings.TrimSpace(a.Name))
		}
		docs = append(docs, Document{
			Title:     strings.Join(strings.Fields(e.Title), " "),
			Authors:   authors,
			Published: parseDate(e.Published),
			DOI:       e.DOI,
			ArxivID:   normalizeArxivID(e.ID),
			URL:       strings.TrimSpace(e.ID),
			Abstract:  strings.TrimSpace(e.Summary),
		})
	}
	return docs, nil
}
