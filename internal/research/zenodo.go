package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const zenodoBaseURL = "https://zenodo.org/api/records"

// ZenodoProvider searches the Zenodo open data repository.
type ZenodoProvider struct {
	httpSource
	BaseURL string
}

func NewZenodoProvider(client *http.Client) *ZenodoProvider {
	return &ZenodoProvider{httpSource: newHTTPSource("zenodo", client, nil), BaseURL: zenodoBaseURL}
}

func (p *ZenodoProvider) Name() string { return "zenodo" }

type zenodoResponse struct {
	Hits struct {
		Hits []struct {
			DOI   string `json:"doi"`
			Links struct {
				HTML string `json:"html"`
			} `json:"links"`
			Metadata struct {
				Title           string `json:"title"`
				PublicationDate string `json:"publication_date"`
				Description     string `json:"description"`
				Creators        []struct {
					Name string `json:"name"`
				} `json:"creators"`
			} `json:"metadata"`
		} `json:"hits"`
	} `json:"hits"`
}

func (p *ZenodoProvider) Search(ctx context.Context, q Query) ([]Document, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("size", fmt.Sprint(q.Limit))
	params.Set("sort", "bestmatch")

	var resp zenodoResponse
	if err := p.getJSON(ctx, p.BaseURL+"?"+params.Encode(), map[string]string{"Accept": "application/json"}, &resp); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		doc := Document{
			Title:     h.Metadata.Title,
			Published: parseDate(h.Metadata.PublicationDate),
			DOI:       h.DOI,
			URL:       h.Links.HTML,
			Abstract:  stripTags(h.Metadata.Description),
		}
		for _, c := range h.Metadata.Creators {
			doc.Authors = append(doc.Authors, c.Name)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// stripTags returns the text content of an HTML fragment.
func stripTags(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
