// Package app assembles the stores, publisher and pipeline from config for
// the server, worker and podcastctl binaries.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/audio"
	"research-podcaster/internal/config"
	"research-podcaster/internal/content"
	"research-podcaster/internal/content/llm"
	"research-podcaster/internal/db"
	"research-podcaster/internal/feed"
	"research-podcaster/internal/memstore"
	"research-podcaster/internal/pipeline"
	"research-podcaster/internal/publisher"
	"research-podcaster/internal/research"
)

// cancelPoll is how often a running job looks for an admin cancellation.
const cancelPoll = 2 * time.Second

// Store is everything the binaries need from persistence.
type Store interface {
	pipeline.JobStore
	publisher.EpisodeStore
}

// OpenStore connects the configured backend.
func OpenStore(cfg *config.Config) (Store, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("Using the in-memory store; jobs and episodes are lost on restart")
		return memstore.New(), nil
	}
	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	return db.New(db.DB), nil
}

// NewPublisher writes the feed document at cfg.FeedPath.
func NewPublisher(cfg *config.Config, store Store) *publisher.Publisher {
	writer := feed.NewWriter(cfg.FeedPath, cfg.BaseURL, cfg.Pipeline.Feed)
	return publisher.New(store, store, writer)
}

// ResearchProviders returns the providers that can run with the keys at
// hand. Keyless providers are always available.
func ResearchProviders(cfg *config.Config, client *http.Client) []research.Provider {
	providers := []research.Provider{
		research.NewArxivProvider(client),
		research.NewPubMedProvider(client, cfg.Keys.PubMed),
		research.NewZenodoProvider(client),
	}
	if cfg.Keys.NASAADS != "" {
		providers = append(providers, research.NewADSProvider(client, cfg.Keys.NASAADS))
	} else {
		log.Info().Str("provider", "nasa_ads").Msg("No token, provider disabled")
	}
	if cfg.Keys.NewsAPI != "" {
		providers = append(providers, research.NewNewsAPIProvider(client, cfg.Keys.NewsAPI))
	} else {
		log.Info().Str("provider", "newsapi").Msg("No key, provider disabled")
	}
	return providers
}

// Completers builds one client per LLM endpoint that has a key. Chain
// entries of a missing endpoint are recorded as unavailable at run time.
func Completers(cfg *config.Config) map[string]llm.Completer {
	out := make(map[string]llm.Completer, len(cfg.Pipeline.LLM.Endpoints))
	for _, e := range cfg.Pipeline.LLM.Endpoints {
		key := e.APIKey()
		if key == "" {
			log.Warn().Str("provider", e.Name).Str("env", e.APIKeyEnv).Msg("No API key, endpoint disabled")
			continue
		}
		out[e.Name] = llm.NewClient(llm.Config{
			Name:           e.Name,
			APIKey:         key,
			BaseURL:        e.BaseURL,
			Referer:        cfg.BaseURL,
			Title:          cfg.Pipeline.Feed.Title,
			TimeoutSeconds: cfg.Pipeline.LLM.TimeoutSeconds,
		})
	}
	return out
}

// NewStorage returns the configured audio storage.
func NewStorage(cfg *config.Config) (audio.Storage, error) {
	if cfg.AudioStorage == "s3" {
		return audio.NewS3Storage(cfg.S3Bucket, cfg.S3Region, cfg.S3PublicURL)
	}
	return &audio.LocalStorage{Dir: cfg.AudioDir, BaseURL: cfg.BaseURL}, nil
}

// NewRunner wires the full pipeline. The returned func releases the
// synthesis worker pool.
func NewRunner(cfg *config.Config, store Store, promoter pipeline.Promoter) (*pipeline.Runner, func(), error) {
	p := cfg.Pipeline
	policy := p.Retry.Policy()

	aggregator := research.NewAggregator(p.Research, policy, research.NewLinkFetcher(nil), ResearchProviders(cfg, nil)...)
	generator := content.NewGenerator(p.LLM.Chain, Completers(cfg), p.Voices.Aliases, policy,
		time.Duration(p.LLM.TimeoutSeconds)*time.Second)

	storage, err := NewStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	pool, err := ants.NewPool(p.Audio.Concurrency)
	if err != nil {
		return nil, nil, fmt.Errorf("create synthesis pool: %w", err)
	}
	synth, err := audio.NewSynthesizer(audio.NewElevenLabsClient(cfg.ElevenLabs, nil), storage, pool, policy, p.Audio)
	if err != nil {
		pool.Release()
		return nil, nil, err
	}

	runner := pipeline.NewRunner(store, aggregator, generator, synth, promoter, pipeline.Settings{
		MinSources: p.Research.MinSources,
		Naming:     p.Naming,
		Aliases:    p.Voices.Aliases,
		CancelPoll: cancelPoll,
	})
	return runner, pool.Release, nil
}
