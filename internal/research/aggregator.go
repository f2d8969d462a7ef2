package research

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"research-podcaster/internal/config"
	"research-podcaster/internal/models"
	"research-podcaster/internal/retry"
)

const (
	// linkWeight is the trust weight of a caller supplied link.
	linkWeight = 3.0
	// maxContextSources caps what is handed to content generation.
	maxContextSources = 20
	maxExcerptRunes   = 600
)

// Aggregator fans a topic out to the routed providers and merges the hits.
type Aggregator struct {
	providers map[string]Provider
	settings  config.Research
	links     LinkSource
	policy    retry.Policy
	now       func() time.Time
}

// NewAggregator wires the providers available at runtime. Providers not
// listed in settings are never called.
func NewAggregator(settings config.Research, policy retry.Policy, links LinkSource, providers ...Provider) *Aggregator {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Aggregator{
		providers: byName,
		settings:  settings,
		links:     links,
		policy:    policy,
		now:       time.Now,
	}
}

type candidate struct {
	doc      Document
	provider string
	score    float64
}

// Discover queries every routed provider concurrently, each under its own
// timeout, fetches the caller's links, and returns the deduplicated sources
// ordered by relevance. It fails with ErrInsufficientEvidence when fewer
// than the configured minimum remain.
func (a *Aggregator) Discover(ctx context.Context, topic, category string, links []string, depth int) (models.ResearchContext, error) {
	subject := Classify(topic, category)
	routes := routeProviders(subject, a.settings.Providers, a.providers)
	limit := a.settings.MaxPerProvider * clampDepth(depth)
	now := a.now()

	log.Info().Str("topic", topic).Str("subject", string(subject)).Int("providers", len(routes)).Int("links", len(links)).Msg("Starting research")

	var (
		mu         sync.Mutex
		candidates []candidate
	)
	add := func(c []candidate) {
		mu.Lock()
		candidates = append(candidates, c...)
		mu.Unlock()
	}

	// Goroutines never return an error: one provider failing must not cancel
	// the others.
	var g errgroup.Group
	for _, r := range routes {
		r := r
		g.Go(func() error {
			docs := a.searchProvider(ctx, r.provider, Query{Text: topic, Category: category, Subject: subject, Limit: limit})
			scored := make([]candidate, 0, len(docs))
			for _, d := range docs {
				scored = append(scored, candidate{doc: d, provider: r.provider.Name(), score: Score(d, r.weight, topic, now)})
			}
			add(scored)
			return nil
		})
	}
	if a.links != nil {
		for _, link := range links {
			link := link
			g.Go(func() error {
				c, ok := a.fetchLink(ctx, link, topic, now)
				if ok {
					add([]candidate{c})
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.ResearchContext{}, err
	}

	sources := dedupe(candidates)
	if len(sources) > maxContextSources {
		sources = sources[:maxContextSources]
	}
	log.Info().Str("topic", topic).Int("candidates", len(candidates)).Int("sources", len(sources)).Msg("Research finished")

	if len(sources) < a.settings.MinSources {
		return models.ResearchContext{}, fmt.Errorf("%w: %d distinct sources for %q, need %d",
			ErrInsufficientEvidence, len(sources), topic, a.settings.MinSources)
	}
	return models.ResearchContext{Subject: string(subject), Sources: sources, GatheredAt: now}, nil
}

func (a *Aggregator) searchProvider(ctx context.Context, p Provider, q Query) []Document {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, a.settings.ProviderTimeout())
	defer cancel()

	var docs []Document
	attempts, err := retry.Do(pctx, a.policy, func(ctx context.Context) error {
		var err error
		docs, err = p.Search(ctx, q)
		return err
	})
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
		docs = nil
	}
	event.Str("provider", p.Name()).Int("count", len(docs)).Int("attempts", attempts).
		Int64("latency_ms", time.Since(start).Milliseconds()).Msg("Research provider finished")
	return docs
}

func (a *Aggregator) fetchLink(ctx context.Context, link, topic string, now time.Time) (candidate, bool) {
	lctx, cancel := context.WithTimeout(ctx, a.settings.ProviderTimeout())
	defer cancel()

	var doc Document
	_, err := retry.Do(lctx, a.policy, func(ctx context.Context) error {
		var err error
		doc, err = a.links.Fetch(ctx, link)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("link", link).Msg("Could not fetch source link")
		return candidate{}, false
	}
	score := Score(doc, linkWeight, topic, now)
	if score < a.settings.MinLinkScore {
		log.Info().Str("link", link).Float64("score", score).Msg("Source link below relevance threshold")
		return candidate{}, false
	}
	return candidate{doc: doc, provider: "user_link", score: score}, true
}

// dedupe collapses candidates by identity key and then by fuzzy title match,
// keeping the best scored copy and filling in fields it lacks.
func dedupe(candidates []candidate) []models.ResearchSource {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var kept []candidate
	byKey := make(map[string]int)
	for _, c := range candidates {
		if strings.TrimSpace(c.doc.Title) == "" && identityKey(c.doc) == "" {
			continue
		}
		key := identityKey(c.doc)
		if i, ok := byKey[key]; ok && key != "" {
			kept[i].doc = merge(kept[i].doc, c.doc)
			continue
		}
		dup := -1
		for i := range kept {
			if sameWork(kept[i].doc, c.doc) {
				dup = i
				break
			}
		}
		if dup >= 0 {
			kept[dup].doc = merge(kept[dup].doc, c.doc)
			if key != "" {
				byKey[key] = dup
			}
			continue
		}
		kept = append(kept, c)
		if key != "" {
			byKey[key] = len(kept) - 1
		}
	}

	sources := make([]models.ResearchSource, 0, len(kept))
	for _, c := range kept {
		id := canonicalIdentifier(c.doc)
		if id == "" {
			continue
		}
		sources = append(sources, models.ResearchSource{
			Title:           strings.TrimSpace(c.doc.Title),
			Authors:         c.doc.Authors,
			PublicationDate: c.doc.Published,
			DOIOrURL:        id,
			AbstractExcerpt: excerpt(c.doc.Abstract),
			ProviderName:    c.provider,
			RelevanceScore:  c.score,
		})
	}
	return sources
}

func merge(keep, other Document) Document {
	if keep.DOI == "" {
		keep.DOI = other.DOI
	}
	if keep.ArxivID == "" {
		keep.ArxivID = other.ArxivID
	}
	if keep.URL == "" {
		keep.URL = other.URL
	}
	if keep.Abstract == "" {
		keep.Abstract = other.Abstract
	}
	if len(keep.Authors) == 0 {
		keep.Authors = other.Authors
	}
	if keep.Published == nil {
		keep.Published = other.Published
	}
	return keep
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxExcerptRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxExcerptRunes])) + "..."
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > 3 {
		return 3
	}
	return depth
}
