package content

import (
	"fmt"
	"strings"

	"research-podcaster/internal/models"
)

const wordsPerMinute = 150

const systemPrompt = `You write scripts for a two person educational podcast.
Use only the numbered research sources you are given. Never invent studies, authors, numbers or citations.
Every line of the script starts with the speaker's name followed by a colon, for example "Ada: Welcome back."
There are exactly two speakers and no narrator, sound effects or stage directions.
Respond with a single JSON object and nothing else:
{"title": string, "description": string, "script": string, "references": [{"index": number, "identifier": string}]}
"references" lists the sources the script relies on, by their [n] number and exact identifier.`

var expertiseGuidance = map[string]string{
	"beginner":     "The audience is curious but new to the field. Explain every technical term and prefer analogies.",
	"intermediate": "The audience knows the basics of the field. Define specialised terms briefly.",
	"expert":       "The audience works in the field. Skip introductions and discuss methods and limitations in depth.",
}

// StyleParams shapes the script without changing which sources it may use.
type StyleParams struct {
	ExpertiseLevel  string
	DurationMinutes int
	Voices          models.VoiceSelection
}

// TargetWords is the approximate script length for the requested duration.
func (s StyleParams) TargetWords() int {
	minutes := s.DurationMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return minutes * wordsPerMinute
}

func buildUserPrompt(topic string, rc models.ResearchContext, style StyleParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	fmt.Fprintf(&b, "Host: %s. Expert guest: %s.\n", style.Voices.Host.Name, style.Voices.Expert.Name)
	guidance, ok := expertiseGuidance[strings.ToLower(style.ExpertiseLevel)]
	if !ok {
		guidance = expertiseGuidance["intermediate"]
	}
	b.WriteString(guidance)
	fmt.Fprintf(&b, "\nAim for about %d words of dialogue.\n\n", style.TargetWords())

	b.WriteString("Research sources:\n")
	for i, s := range rc.Sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s.Title)
		if len(s.Authors) > 0 {
			fmt.Fprintf(&b, "    Authors: %s\n", strings.Join(s.Authors, ", "))
		}
		if s.PublicationDate != nil {
			fmt.Fprintf(&b, "    Published: %s\n", s.PublicationDate.Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "    Identifier: %s\n", s.DOIOrURL)
		if s.AbstractExcerpt != "" {
			fmt.Fprintf(&b, "    Excerpt: %s\n", s.AbstractExcerpt)
		}
	}
	return b.String()
}
