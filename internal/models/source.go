package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ResearchSource is one discovered document. It is never mutated once it
// has been added to a job's research context.
type ResearchSource struct {
	Title           string     `json:"title"`
	Authors         []string   `json:"authors"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	DOIOrURL        string     `json:"doi_or_url"`
	AbstractExcerpt string     `json:"abstract_excerpt"`
	ProviderName    string     `json:"provider_name"`
	RelevanceScore  float64    `json:"relevance_score"`
}

// ResearchContext is stored on the job only after the aggregator succeeded.
type ResearchContext struct {
	Subject    string           `json:"subject"`
	Sources    []ResearchSource `json:"sources"`
	GatheredAt time.Time        `json:"gathered_at"`
}

func (rc ResearchContext) Value() (driver.Value, error) {
	return json.Marshal(rc)
}

func (rc *ResearchContext) Scan(src interface{}) error {
	return scanJSON(src, rc)
}

// Role is one of the two dialogue roles.
type Role string

const (
	RoleHost   Role = "host"
	RoleExpert Role = "expert"
)

// Segment is one line of dialogue resolved to a synthesis voice.
type Segment struct {
	Index   int    `json:"index"`
	Role    Role   `json:"role"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}
