package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const adsBaseURL = "https://api.adsabs.harvard.edu/v1/search/query"

// ADSProvider searches the NASA astrophysics data system.
type ADSProvider struct {
	httpSource
	BaseURL string
	Token   string
}

func NewADSProvider(client *http.Client, token string) *ADSProvider {
	return &ADSProvider{httpSource: newHTTPSource("nasa_ads", client, nil), BaseURL: adsBaseURL, Token: token}
}

func (p *ADSProvider) Name() string { return "nasa_ads" }

type adsResponse struct {
	Response struct {
		Docs []struct {
			Bibcode  string   `json:"bibcode"`
			Title    []string `json:"title"`
			Author   []string `json:"author"`
			PubDate  string   `json:"pubdate"`
			DOI      []string `json:"doi"`
			Abstract string   `json:"abstract"`
		} `json:"docs"`
	} `json:"response"`
}

func (p *ADSProvider) Search(ctx context.Context, q Query) ([]Document, error) {
	if p.Token == "" {
		return nil, errors.New("nasa_ads: no token configured")
	}
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("fl", "bibcode,title,author,pubdate,doi,abstract")
	params.Set("rows", fmt.Sprint(q.Limit))
	params.Set("sort", "score desc")

	var resp adsResponse
	if err := p.getJSON(ctx, p.BaseURL+"?"+params.Encode(), map[string]string{"Authorization": "Bearer " + p.Token}, &resp); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Response.Docs))
	for _, d := range resp.Response.Docs {
		doc := Document{
			Authors:   d.Author,
			Published: parseDate(d.PubDate),
			Abstract:  d.Abstract,
			URL:       "https://ui.adsabs.harvard.edu/abs/" + d.Bibcode,
		}
		if len(d.Title) > 0 {
			doc.Title = d.Title[0]
		}
		if len(d.DOI) > 0 {
			doc.DOI = d.DOI[0]
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
