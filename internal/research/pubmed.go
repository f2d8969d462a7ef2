package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const pubmedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedProvider searches the NCBI biomedical index through E-utilities.
type PubMedProvider struct {
	httpSource
	BaseURL string
	APIKey  string
}

// NewPubMedProvider paces requests to three per second, or ten with a key.
func NewPubMedProvider(client *http.Client, apiKey string) *PubMedProvider {
	perSecond := 3
	if apiKey != "" {
		perSecond = 10
	}
	return &PubMedProvider{
		httpSource: newHTTPSource("pubmed", client, rate.NewLimiter(rate.Every(time.Second/time.Duration(perSecond)), 1)),
		BaseURL:    pubmedBaseURL,
		APIKey:     apiKey,
	}
}

func (p *PubMedProvider) Name() string { return "pubmed" }

type pubmedSearch struct {
	Result struct {
		IDs []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedSummary struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedDoc struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ArticleIDs []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

func (p *PubMedProvider) Search(ctx context.Context, q Query) ([]Document, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", q.Text)
	params.Set("retmode", "json")
	params.Set("retmax", fmt.Sprint(q.Limit))
	params.Set("sort", "relevance")
	if p.APIKey != "" {
		params.Set("api_key", p.APIKey)
	}
	var search pubmedSearch
	if err := p.getJSON(ctx, p.BaseURL+"/esearch.fcgi?"+params.Encode(), nil, &search); err != nil {
		return nil, err
	}
	if len(search.Result.IDs) == 0 {
		return nil, nil
	}

	params = url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(search.Result.IDs, ","))
	params.Set("retmode", "json")
	if p.APIKey != "" {
		params.Set("api_key", p.APIKey)
	}
	var summary pubmedSummary
	if err := p.getJSON(ctx, p.BaseURL+"/esummary.fcgi?"+params.Encode(), nil, &summary); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(search.Result.IDs))
	for _, id := range search.Result.IDs {
		raw, ok := summary.Result[id]
		if !ok {
			continue
		}
		var d pubmedDoc
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		doc := Document{
			Title:     strings.TrimSuffix(strings.TrimSpace(d.Title), "."),
			Published: parseDate(d.PubDate),
			URL:       "https://pubmed.ncbi.nlm.nih.gov/" + id + "/",
		}
		for _, a := range d.Authors {
			doc.Authors = append(doc.Authors, a.Name)
		}
		for _, aid := range d.ArticleIDs {
			if aid.IDType == "doi" {
				doc.DOI = aid.Value
			}
		}
		if d.Source != "" {
			doc.Abstract = "Published in " + d.Source + "."
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
