package research

import (
	"strings"

	"research-podcaster/internal/config"
)

// Subject is the coarse subject area used to route provider calls.
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectPhysics Subject = "physics"
	SubjectBiomed  Subject = "biomed"
	SubjectCS      Subject = "cs"
	SubjectEarth   Subject = "earth"
	SubjectGeneral Subject = "general"
)

var categorySubjects = map[string]Subject{
	"math":             SubjectMath,
	"mathematics":      SubjectMath,
	"statistics":       SubjectMath,
	"phys":             SubjectPhysics,
	"physics":          SubjectPhysics,
	"astro":            SubjectPhysics,
	"astronomy":        SubjectPhysics,
	"astrophysics":     SubjectPhysics,
	"space":            SubjectPhysics,
	"bio":              SubjectBiomed,
	"biology":          SubjectBiomed,
	"med":              SubjectBiomed,
	"medicine":         SubjectBiomed,
	"health":           SubjectBiomed,
	"neuroscience":     SubjectBiomed,
	"cs":               SubjectCS,
	"tech":             SubjectCS,
	"technology":       SubjectCS,
	"computer science": SubjectCS,
	"ai":               SubjectCS,
	"env":              SubjectEarth,
	"environment":      SubjectEarth,
	"climate":          SubjectEarth,
	"earth":            SubjectEarth,
	"geology":          SubjectEarth,
}

var subjectKeywords = map[Subject][]string{
	SubjectMath:    {"theorem", "number theory", "prime", "algebra", "topology", "geometry", "conjecture", "calculus", "combinatorics", "equation", "mathemat"},
	SubjectPhysics: {"quantum", "particle", "galaxy", "black hole", "cosmolog", "dark matter", "gravitational", "exoplanet", "telescope", "neutrino", "relativity", "stellar", "physic"},
	SubjectBiomed:  {"gene", "protein", "cancer", "vaccine", "clinical", "disease", "cell", "brain", "virus", "microbiome", "drug", "therapy", "crispr"},
	SubjectCS:      {"machine learning", "neural network", "algorithm", "software", "language model", "computer", "cryptograph", "robot", "artificial intelligence"},
	SubjectEarth:   {"climate", "ocean", "earthquake", "glacier", "carbon", "biodiversity", "volcano", "weather", "ecosystem", "emission"},
}

// Classify picks the subject of a topic. The category counts three times as
// much as a single topic keyword; no signal at all yields SubjectGeneral.
func Classify(topic, category string) Subject {
	scores := make(map[Subject]int)
	if s, ok := categorySubjects[strings.ToLower(strings.TrimSpace(category))]; ok {
		scores[s] += 3
	}
	lowered := strings.ToLower(topic)
	for subject, words := range subjectKeywords {
		for _, w := range words {
			if strings.Contains(lowered, w) {
				scores[subject]++
			}
		}
	}

	best, bestScore := SubjectGeneral, 0
	for _, s := range []Subject{SubjectMath, SubjectPhysics, SubjectBiomed, SubjectCS, SubjectEarth} {
		if scores[s] > bestScore {
			best, bestScore = s, scores[s]
		}
	}
	return best
}

type route struct {
	provider Provider
	weight   float64
}

// routeProviders returns the providers configured for subject with their
// trust weight. Providers without a subject list are always routed. If no
// provider matches, every provider is used so a topic is never left unsearched.
func routeProviders(subject Subject, settings []config.ResearchProvider, providers map[string]Provider) []route {
	var routes []route
	for _, s := range settings {
		p, ok := providers[s.Name]
		if !ok || s.Weight <= 0 {
			continue
		}
		if len(s.Subjects) == 0 || containsSubject(s.Subjects, subject) {
			routes = append(routes, route{provider: p, weight: s.Weight})
		}
	}
	if len(routes) > 0 {
		return routes
	}
	for _, s := range settings {
		if p, ok := providers[s.Name]; ok && s.Weight > 0 {
			routes = append(routes, route{provider: p, weight: s.Weight})
		}
	}
	return routes
}

func containsSubject(list []string, subject Subject) bool {
	for _, s := range list {
		if Subject(strings.ToLower(s)) == subject {
			return true
		}
	}
	return false
}
