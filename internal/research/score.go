package research

import (
	"math"
	"strings"
	"time"
)

const (
	maxTrust          = 5.0
	maxRecency        = 3.0
	recencyHorizon    = 10.0
	undatedRecency    = 0.5
	doiBonus          = 2.0
	stableIDBonus     = 1.0
	maxTopicBonus     = 2.0
	maxRelevanceScore = 10.0
)

// Score combines provider trust weight, recency and the presence of an
// authoritative identifier, plus a small bonus for topic term overlap. The
// result is in [0, 10].
func Score(d Document, weight float64, topic string, now time.Time) float64 {
	score := math.Max(0, math.Min(weight, maxTrust))

	if d.Published == nil || d.Published.IsZero() {
		score += undatedRecency
	} else {
		years := now.Sub(*d.Published).Hours() / (24 * 365.25)
		if years < 0 {
			years = 0
		}
		score += maxRecency * math.Max(0, 1-years/recencyHorizon)
	}

	switch {
	case NormalizeDOI(d.DOI) != "":
		score += doiBonus
	case d.ArxivID != "":
		score += stableIDBonus
	}

	if terms := topicTerms(topic); len(terms) > 0 {
		text := strings.ToLower(d.Title + " " + d.Abstract)
		hits := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				hits++
			}
		}
		score += maxTopicBonus * float64(hits) / float64(len(terms))
	}

	score = math.Min(score, maxRelevanceScore)
	return math.Round(score*100) / 100
}
