// Package config loads runtime configuration from the environment and the
// optional TOML pipeline file. Required variables are checked at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"research-podcaster/internal/retry"
)

// Config is the full runtime configuration shared by server, worker,
// scheduler and podcastctl.
type Config struct {
	Port         string
	BaseURL      string
	DatabaseURL  string
	StoreBackend string
	RedisAddr    string
	AdminToken   string
	LogLevel     string
	LogFormat    string
	FeedPath     string

	// SubmitPerMinute and SubmitBurst bound job submissions per client.
	SubmitPerMinute int
	SubmitBurst     int

	// WorkerConcurrency is the number of jobs one worker runs at once.
	WorkerConcurrency int

	AudioStorage string
	AudioDir     string
	S3Bucket     string
	S3Region     string
	S3PublicURL  string

	ElevenLabs ElevenLabs
	Keys       ProviderKeys

	Pipeline Pipeline
}

// ElevenLabs holds the text to speech provider settings.
type ElevenLabs struct {
	APIURL  string
	APIKey  string
	ModelID string
}

// ProviderKeys are credentials for research providers. A provider without
// a required key is skipped.
type ProviderKeys struct {
	NewsAPI string
	NASAADS string
	PubMed  string
}

// Pipeline is the operational tuning loaded from PIPELINE_CONFIG.
type Pipeline struct {
	Research Research `toml:"research"`
	LLM      LLM      `toml:"llm"`
	Voices   Voices   `toml:"voices"`
	Naming   Naming   `toml:"naming"`
	Audio    Audio    `toml:"audio"`
	Retry    Retry    `toml:"retry"`
	Feed     Feed     `toml:"feed"`
}

// Research controls the aggregator.
type Research struct {
	MinSources             int                `toml:"min_sources"`
	ProviderTimeoutSeconds int                `toml:"provider_timeout_seconds"`
	MaxPerProvider         int                `toml:"max_per_provider"`
	MinLinkScore           float64            `toml:"min_link_score"`
	Providers              []ResearchProvider `toml:"provider"`
}

// ResearchProvider sets the trust weight of one provider and the subjects it
// is routed for. An empty subject list routes it for every subject.
type ResearchProvider struct {
	Name     string   `toml:"name"`
	Weight   float64  `toml:"weight"`
	Subjects []string `toml:"subjects"`
}

// LLM describes the completion endpoints and the ordered fallback chain.
type LLM struct {
	TimeoutSeconds int           `toml:"timeout_seconds"`
	Endpoints      []LLMEndpoint `toml:"endpoint"`
	Chain          []ChainEntry  `toml:"chain"`
}

// LLMEndpoint is one OpenAI compatible chat completions API.
type LLMEndpoint struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
}

// ChainEntry is one (provider, model) pair of the fallback chain.
type ChainEntry struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

// Voices carries the speaker alias table.
type Voices struct {
	Aliases map[string][]string `toml:"aliases"`
}

// Naming controls canonical filenames.
type Naming struct {
	Prefix        string            `toml:"prefix"`
	Width         int               `toml:"width"`
	CategoryCodes map[string]string `toml:"category_codes"`
}

// Audio controls synthesis and bumpers.
type Audio struct {
	IntroPath   string `toml:"intro_path"`
	OutroPath   string `toml:"outro_path"`
	BitrateKbps int    `toml:"bitrate_kbps"`
	Concurrency int    `toml:"concurrency"`
}

// Retry is the bounded retry policy shared by provider calls.
type Retry struct {
	Attempts    int `toml:"attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

// Feed is the channel metadata of the distribution feed.
type Feed struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Author      string `toml:"author"`
	Link        string `toml:"link"`
}

const (
	derivedCodeLen       = 4
	fallbackCategoryCode = "gen"
)

// filenamePart is what a prefix or category code may contain, so canonical
// filenames stay single path segments.
var filenamePart = regexp.MustCompile(`^[a-z0-9]+$`)

// Load reads environment variables and the pipeline file and returns a
// validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envOr("PORT", "8080"),
		BaseURL:      strings.TrimRight(envOr("BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreBackend: envOr("STORE_BACKEND", "postgres"),
		RedisAddr:    envOr("REDIS_ADDR", "127.0.0.1:6379"),
		AdminToken:   os.Getenv("ADMIN_TOKEN"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		FeedPath:     envOr("FEED_PATH", "feed/feed.xml"),
		AudioStorage: envOr("AUDIO_STORAGE", "local"),
		AudioDir:     envOr("AUDIO_DIR", "audio"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Region:     os.Getenv("S3_REGION"),
		S3PublicURL:  strings.TrimRight(os.Getenv("S3_PUBLIC_URL"), "/"),
		ElevenLabs: ElevenLabs{
			APIURL:  envOr("ELEVEN_LABS_API_URL", "https://api.elevenlabs.io/v1/text-to-speech"),
			APIKey:  os.Getenv("ELEVEN_LABS_API_KEY"),
			ModelID: envOr("ELEVEN_LABS_MODEL_ID", "eleven_multilingual_v2"),
		},
		Keys: ProviderKeys{
			NewsAPI: os.Getenv("NEWSAPI_KEY"),
			NASAADS: os.Getenv("NASA_ADS_TOKEN"),
			PubMed:  os.Getenv("PUBMED_API_KEY"),
		},
	}

	cfg.SubmitPerMinute = envInt("SUBMIT_RATE_PER_MINUTE", 6)
	cfg.SubmitBurst = envInt("SUBMIT_RATE_BURST", 3)
	cfg.WorkerConcurrency = envInt("WORKER_CONCURRENCY", 2)

	pipeline, err := LoadPipeline(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg.Pipeline = pipeline

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	switch c.AudioStorage {
	case "local":
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return errors.New("S3_BUCKET and S3_REGION are required when AUDIO_STORAGE=s3")
		}
	default:
		return fmt.Errorf("AUDIO_STORAGE must be local or s3, got %q", c.AudioStorage)
	}
	return c.Pipeline.Validate()
}

// LoadPipeline decodes the TOML file at path over the built-in defaults. An
// empty path or a missing file yields the defaults.
func LoadPipeline(path string) (Pipeline, error) {
	if path == "" {
		return DefaultPipeline(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPipeline(), nil
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline config: %w", err)
	}
	var p Pipeline
	if err := toml.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	p = p.withDefaults(DefaultPipeline())
	return p, p.Validate()
}

// Validate checks the pipeline settings for values the runner cannot use.
func (p Pipeline) Validate() error {
	if p.Research.MinSources < 1 {
		return fmt.Errorf("research.min_sources must be >= 1, got %d", p.Research.MinSources)
	}
	if p.Research.ProviderTimeoutSeconds < 1 {
		return fmt.Errorf("research.provider_timeout_seconds must be >= 1, got %d", p.Research.ProviderTimeoutSeconds)
	}
	if len(p.LLM.Chain) == 0 {
		return errors.New("llm.chain must list at least one provider/model")
	}
	endpoints := make(map[string]bool, len(p.LLM.Endpoints))
	for _, e := range p.LLM.Endpoints {
		endpoints[e.Name] = true
	}
	for i, entry := range p.LLM.Chain {
		if !endpoints[entry.Provider] {
			return fmt.Errorf("llm.chain[%d]: unknown provider %q", i, entry.Provider)
		}
		if entry.Model == "" {
			return fmt.Errorf("llm.chain[%d]: model is required", i)
		}
	}
	if !filenamePart.MatchString(p.Naming.Prefix) {
		return fmt.Errorf("naming.prefix must be lowercase letters or digits, got %q", p.Naming.Prefix)
	}
	for category, code := range p.Naming.CategoryCodes {
		if !filenamePart.MatchString(code) {
			return fmt.Errorf("naming.category_codes.%s must be lowercase letters or digits, got %q", category, code)
		}
	}
	if p.Retry.Attempts < 1 || p.Retry.Attempts > 3 {
		return fmt.Errorf("retry.attempts must be between 1 and 3, got %d", p.Retry.Attempts)
	}
	return nil
}

// ProviderTimeout is the per provider deadline for research calls.
func (r Research) ProviderTimeout() time.Duration {
	return time.Duration(r.ProviderTimeoutSeconds) * time.Second
}

// CategoryCode returns the short code used in canonical filenames. Unmapped
// categories use their first four ASCII letters or digits.
func (n Naming) CategoryCode(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if code, ok := n.CategoryCodes[key]; ok {
		return code
	}
	var b strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == derivedCodeLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return fallbackCategoryCode
	}
	return b.String()
}

// Policy converts the retry block into a retry.Policy.
func (r Retry) Policy() retry.Policy {
	return retry.Policy{
		Attempts:  r.Attempts,
		BaseDelay: time.Duration(r.BaseDelayMS) * time.Millisecond,
		MaxDelay:  time.Duration(r.MaxDelayMS) * time.Millisecond,
	}
}

// APIKey resolves the endpoint's key from the environment.
func (e LLMEndpoint) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
