package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/retry"
)

const arxivFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2301.01234v2</id>
    <published>2023-01-04T18:00:00Z</published>
    <title>Gaps between
      primes</title>
    <summary>We study gaps.</summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <arxiv:doi>10.1000/primes</arxiv:doi>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:prime gaps", r.URL.Query().Get("search_query"))
		assert.Equal(t, "4", r.URL.Query().Get("max_results"))
		w.Write([]byte(arxivFixture))
	}))
	defer srv.Close()

	p := NewArxivProvider(srv.Client())
	p.limiter = nil
	p.BaseURL = srv.URL
	docs, err := p.Search(context.Background(), Query{Text: "prime gaps", Limit: 4})

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Gaps between primes", docs[0].Title)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, docs[0].Authors)
	assert.Equal(t, "2301.01234", docs[0].ArxivID)
	assert.Equal(t, "10.1000/primes", docs[0].DOI)
	assert.Equal(t, 2023, docs[0].Published.Year())
}

func TestPubMedSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			w.Write([]byte(`{"esearchresult":{"idlist":["111"]}}`))
		case "/esummary.fcgi":
			assert.Equal(t, "111", r.URL.Query().Get("id"))
			w.Write([]byte(`{"result":{"uids":["111"],"111":{"title":"Gene editing in vivo.","pubdate":"2022 Mar 3","source":"Nature","authors":[{"name":"Doudna J"}],"articleids":[{"idtype":"doi","value":"10.1038/abc"}]}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPubMedProvider(srv.Client(), "")
	p.limiter = nil
	p.BaseURL = srv.URL
	docs, err := p.Search(context.Background(), Query{Text: "gene editing", Limit: 5})

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Gene editing in vivo", docs[0].Title)
	assert.Equal(t, "10.1038/abc", docs[0].DOI)
	assert.Equal(t, []string{"Doudna J"}, docs[0].Authors)
}

func TestProviderStatusErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewZenodoProvider(srv.Client())
	p.BaseURL = srv.URL
	_, err := p.Search(context.Background(), Query{Text: "x", Limit: 1})

	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, retry.Transient(err))
}

func TestNewsAPIWithoutKey(t *testing.T) {
	_, err := NewNewsAPIProvider(nil, "").Search(context.Background(), Query{Text: "x"})
	assert.Error(t, err)
	assert.False(t, retry.Transient(err))
}

func TestLinkFetcherReadsCitationMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Site title</title>
<meta name="citation_title" content="Elliptic curves over finite fields">
<meta name="citation_author" content="Noether, Emmy">
<meta name="citation_doi" content="10.5555/ec.1">
<meta name="citation_publication_date" content="2021/07/01">
<meta name="description" content="A survey of elliptic curves.">
</head><body></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewLinkFetcher(srv.Client()).Fetch(context.Background(), srv.URL+"/article")

	require.NoError(t, err)
	assert.Equal(t, "Elliptic curves over finite fields", doc.Title)
	assert.Equal(t, []string{"Noether, Emmy"}, doc.Authors)
	assert.Equal(t, "10.5555/ec.1", doc.DOI)
	assert.Equal(t, "A survey of elliptic curves.", doc.Abstract)
	require.NotNil(t, doc.Published)
	assert.Equal(t, 2021, doc.Published.Year())
}

func TestLinkFetcherRejectsNonHTTP(t *testing.T) {
	_, err := NewLinkFetcher(nil).Fetch(context.Background(), "ftp://example.org/x")
	assert.Error(t, err)
	assert.False(t, retry.Transient(err))
}
