package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusPending           Status = "pending"
	StatusResearching       Status = "researching"
	StatusGeneratingContent Status = "generating_content"
	StatusGeneratingAudio   Status = "generating_audio"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorKind is the typed reason attached to a failed job.
type ErrorKind string

const (
	ErrorInsufficientEvidence       ErrorKind = "insufficient_evidence"
	ErrorContentGenerationFailed    ErrorKind = "content_generation_failed"
	ErrorScriptParse                ErrorKind = "script_parse_error"
	ErrorSynthesisFailed            ErrorKind = "synthesis_failed"
	ErrorProviderTimeout            ErrorKind = "provider_timeout"
	ErrorSequenceAssignmentConflict ErrorKind = "sequence_assignment_conflict"
	ErrorCancelled                  ErrorKind = "cancelled"
	ErrorInternal                   ErrorKind = "internal"
)

// Speaker is one side of the dialogue as chosen by the caller.
type Speaker struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

// VoiceSelection maps the two dialogue roles to caller chosen speakers.
type VoiceSelection struct {
	Host   Speaker `json:"host"`
	Expert Speaker `json:"expert"`
}

func (v VoiceSelection) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VoiceSelection) Scan(src interface{}) error {
	return scanJSON(src, v)
}

// Job is one generation attempt. Rows are never deleted.
type Job struct {
	ID                string           `db:"id" json:"id"`
	Topic             string           `db:"topic" json:"topic"`
	Category          string           `db:"category" json:"category"`
	ExpertiseLevel    string           `db:"expertise_level" json:"expertise_level"`
	DurationHint      int              `db:"duration_hint" json:"duration_hint"`
	Voices            VoiceSelection   `db:"voices" json:"voices"`
	SourceLinks       pq.StringArray   `db:"source_links" json:"source_links"`
	SubscriberID      *string          `db:"subscriber_id" json:"subscriber_id,omitempty"`
	Status            Status           `db:"status" json:"status"`
	ResearchContext   *ResearchContext `db:"research_context" json:"research_context,omitempty"`
	CanonicalFilename *string          `db:"canonical_filename" json:"canonical_filename,omitempty"`
	Sequence          *int             `db:"sequence" json:"-"`
	Result            *Result          `db:"result" json:"result,omitempty"`
	Error             *string          `db:"error" json:"error,omitempty"`
	ErrorKind         *ErrorKind       `db:"error_kind" json:"error_kind,omitempty"`
	TaskID            *string          `db:"task_id" json:"-"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Reference is a citation in the final result. Identifier always equals the
// DOIOrURL of a ResearchSource from the job's research context.
type Reference struct {
	Index      int      `json:"index"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	Identifier string   `json:"identifier"`
	Provider   string   `json:"provider"`
}

// GenerationAttempt records one call to a language model.
type GenerationAttempt struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	LatencyMS int64  `json:"latency_ms"`
}

// Result is the structured output of a job. AudioURL, DurationSeconds and
// AudioSizeBytes are set only once synthesis has finished.
type Result struct {
	Title           string              `json:"title"`
	Script          string              `json:"script"`
	Description     string              `json:"description"`
	AudioURL        string              `json:"audio_url,omitempty"`
	DurationSeconds int                 `json:"duration_seconds,omitempty"`
	AudioSizeBytes  int64               `json:"audio_size_bytes,omitempty"`
	References      []Reference         `json:"references"`
	Attempts        []GenerationAttempt `json:"attempts,omitempty"`
}

func (r Result) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Result) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
