package research

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	doiPattern     = regexp.MustCompile(`10\.\d{4,9}/[^\s"<>]+`)
	arxivVersion   = regexp.MustCompile(`v\d+$`)
	arxivBare      = regexp.MustCompile(`^(\d{4}\.\d{4,5}|[a-z-]+(\.[a-z]{2})?/\d{7})(v\d+)?$`)
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
	trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid", "ref"}
)

// NormalizeDOI lowercases a DOI and strips resolver prefixes. It returns ""
// if s holds no DOI.
func NormalizeDOI(s string) string {
	m := doiPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return ""
	}
	return strings.TrimRight(strings.ToLower(m), ".,;)")
}

// NormalizeURL strips the scheme, a leading www., tracking parameters,
// fragments and trailing slashes.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	out := host + path
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	return out
}

func normalizeArxivID(id string) string {
	id = strings.TrimSpace(strings.ToLower(id))
	id = strings.TrimPrefix(id, "arxiv:")
	if i := strings.Index(id, "arxiv.org/abs/"); i >= 0 {
		id = id[i+len("arxiv.org/abs/"):]
	}
	return arxivVersion.ReplaceAllString(id, "")
}

// ArxivID returns the versionless arXiv id held by s, accepting the
// "arXiv:" form, abs URLs and bare ids. It returns "" for anything else.
func ArxivID(s string) string {
	id := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(id, "arxiv:") && !strings.Contains(id, "arxiv.org/abs/") && !arxivBare.MatchString(id) {
		return ""
	}
	id = normalizeArxivID(id)
	if !arxivBare.MatchString(id) {
		return ""
	}
	return id
}

// identityKey is the exact dedup key: DOI, then arXiv id, then URL. Documents
// with none of these get "" and are matched by title only.
func identityKey(d Document) string {
	if doi := NormalizeDOI(d.DOI); doi != "" {
		return "doi:" + doi
	}
	if d.ArxivID != "" {
		return "arxiv:" + normalizeArxivID(d.ArxivID)
	}
	if d.URL != "" {
		return "url:" + NormalizeURL(d.URL)
	}
	return ""
}

// canonicalIdentifier is the doi_or_url stored on a ResearchSource.
func canonicalIdentifier(d Document) string {
	if doi := NormalizeDOI(d.DOI); doi != "" {
		return "https://doi.org/" + doi
	}
	if d.ArxivID != "" {
		return "https://arxiv.org/abs/" + normalizeArxivID(d.ArxivID)
	}
	return strings.TrimSpace(d.URL)
}

func titleTokens(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range nonAlnum.Split(strings.ToLower(title), -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func surname(author string) string {
	author = strings.TrimSpace(author)
	if i := strings.Index(author, ","); i > 0 {
		return strings.ToLower(author[:i])
	}
	parts := strings.Fields(author)
	if len(parts) == 0 {
		return ""
	}
	// PubMed style "Smith J" puts initials last.
	last := parts[len(parts)-1]
	if len(parts) > 1 && len(last) <= 2 && strings.ToUpper(last) == last {
		return strings.ToLower(parts[0])
	}
	return strings.ToLower(last)
}

// sameWork is the fuzzy fallback: near identical titles and, when both
// sides list authors, the same first author surname.
func sameWork(a, b Document) bool {
	if jaccard(titleTokens(a.Title), titleTokens(b.Title)) < 0.85 {
		return false
	}
	if len(a.Authors) == 0 || len(b.Authors) == 0 {
		return true
	}
	return surname(a.Authors[0]) == surname(b.Authors[0])
}

func topicTerms(topic string) []string {
	set := titleTokens(topic)
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"recent": true, "advances": true, "new": true, "about": true, "how": true,
	"what": true, "why": true, "are": true, "its": true, "their": true, "this": true,
	"that": true, "over": true, "using": true, "via": true, "toward": true, "towards": true,
}
