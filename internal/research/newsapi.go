package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIProvider searches recent news coverage.
type NewsAPIProvider struct {
	httpSource
	BaseURL string
	APIKey  string
}

func NewNewsAPIProvider(client *http.Client, apiKey string) *NewsAPIProvider {
	return &NewsAPIProvider{httpSource: newHTTPSource("newsapi", client, nil), BaseURL: newsAPIBaseURL, APIKey: apiKey}
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Author      string `json:"author"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Description string `json:"description"`
	} `json:"articles"`
}

func (p *NewsAPIProvider) Search(ctx context.Context, q Query) ([]Document, error) {
	if p.APIKey == "" {
		return nil, errors.New("newsapi: no api key configured")
	}
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("pageSize", fmt.Sprint(q.Limit))
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")

	var resp newsAPIResponse
	if err := p.getJSON(ctx, p.BaseURL+"?"+params.Encode(), map[string]string{"X-Api-Key": p.APIKey}, &resp); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		doc := Document{
			Title:     a.Title,
			URL:       a.URL,
			Published: parseDate(a.PublishedAt),
			Abstract:  a.Description,
		}
		if a.Author != "" {
			doc.Authors = []string{a.Author}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
