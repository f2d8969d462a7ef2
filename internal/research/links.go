package research

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"research-podcaster/internal/retry"
)

// LinkFetcher turns a caller supplied URL into a Document. It reads the
// HTML title and the citation_* and description meta tags that publishers
// expose for indexers.
type LinkFetcher struct {
	httpSource
}

func NewLinkFetcher(client *http.Client) *LinkFetcher {
	return &LinkFetcher{httpSource: newHTTPSource("link", client, nil)}
}

func (f *LinkFetcher) Fetch(ctx context.Context, rawURL string) (Document, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Document{}, retry.Permanent(fmt.Errorf("link %q: only http and https links are supported", rawURL))
	}
	doc := Document{URL: u.String(), DOI: NormalizeDOI(u.String())}
	if strings.HasSuffix(u.Host, "arxiv.org") && strings.HasPrefix(u.Path, "/abs/") {
		doc.ArxivID = normalizeArxivID(strings.TrimPrefix(u.Path, "/abs/"))
	}

	body, err := f.get(ctx, u.String(), map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return Document{}, err
	}
	if bytes.HasPrefix(body, []byte("%PDF")) {
		doc.Title = strings.TrimSuffix(path.Base(u.Path), ".pdf")
		return doc, nil
	}
	parseHTMLMeta(body, &doc)
	return doc, nil
}

func parseHTMLMeta(body []byte, doc *Document) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return
	}
	var title, description string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = n.FirstChild.Data
				}
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				if name == "" {
					name = strings.ToLower(attr(n, "property"))
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch name {
				case "citation_title", "og:title":
					if doc.Title == "" {
						doc.Title = content
					}
				case "citation_author":
					doc.Authors = append(doc.Authors, content)
				case "citation_doi", "dc.identifier":
					if doi := NormalizeDOI(content); doi != "" {
						doc.DOI = doi
					}
				case "citation_publication_date", "citation_date", "article:published_time":
					if doc.Published == nil {
						doc.Published = parseDate(strings.ReplaceAll(content, "/", "-"))
					}
				case "citation_abstract", "description", "og:description":
					if description == "" {
						description = content
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if doc.Title == "" {
		doc.Title = strings.TrimSpace(title)
	}
	doc.Abstract = description
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
