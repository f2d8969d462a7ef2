package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/audio"
	"research-podcaster/internal/config"
	"research-podcaster/internal/memstore"
)

func memoryConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		BaseURL:      "http://localhost:8080",
		StoreBackend: "memory",
		AudioStorage: "local",
		AudioDir:     dir,
		FeedPath:     dir + "/feed.xml",
		Pipeline:     config.DefaultPipeline(),
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := OpenStore(memoryConfig(t))
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, store)
}

func TestResearchProvidersNeedKeys(t *testing.T) {
	cfg := memoryConfig(t)
	names := func() []string {
		var out []string
		for _, p := range ResearchProviders(cfg, nil) {
			out = append(out, p.Name())
		}
		return out
	}
	assert.ElementsMatch(t, []string{"arxiv", "pubmed", "zenodo"}, names())

	cfg.Keys.NASAADS = "token"
	cfg.Keys.NewsAPI = "key"
	assert.ElementsMatch(t, []string{"arxiv", "pubmed", "zenodo", "nasa_ads", "newsapi"}, names())
}

func TestCompletersSkipEndpointsWithoutKey(t *testing.T) {
	cfg := memoryConfig(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENROUTER_API_KEY", "")

	completers := Completers(cfg)

	assert.Contains(t, completers, "openai")
	assert.NotContains(t, completers, "openrouter")
}

func TestNewRunnerWithLocalStorage(t *testing.T) {
	cfg := memoryConfig(t)
	store, err := OpenStore(cfg)
	require.NoError(t, err)

	runner, release, err := NewRunner(cfg, store, NewPublisher(cfg, store))
	require.NoError(t, err)
	defer release()
	assert.NotNil(t, runner)

	storage, err := NewStorage(cfg)
	require.NoError(t, err)
	assert.IsType(t, &audio.LocalStorage{}, storage)
}
