package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/config"
	"research-podcaster/internal/models"
)

func episode(name string) models.Episode {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Episode{
		CanonicalFilename: name,
		Title:             "Dark matter halos",
		Description:       "Bryan and Bella on halos.",
		AudioURL:          "https://cdn.example.org/" + name + ".mp3",
		AudioSizeBytes:    1234,
		DurationSeconds:   600,
		References:        models.References{{Index: 1, Title: "Halo survey", Identifier: "https://doi.org/10.1/halo"}},
		SubmittedToFeed:   true,
		FeedSubmittedAt:   &at,
		PromotedAt:        at,
	}
}

func TestRenderIncludesEpisodesAndReferences(t *testing.T) {
	w := NewWriter("unused", "https://pod.example.org/", config.Feed{Title: "Research Radio", Description: "Papers, discussed.", Author: "Research Radio"})

	data, err := w.Render([]models.Episode{episode("ep-phys-000001")})

	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "<title>Research Radio</title>")
	assert.Contains(t, doc, "https://cdn.example.org/ep-phys-000001.mp3")
	assert.Contains(t, doc, "https://doi.org/10.1/halo")
	assert.Contains(t, doc, "https://pod.example.org/feed.xml")
}

func TestWriteReplacesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feed.xml")
	w := NewWriter(path, "https://pod.example.org", config.Feed{Title: "Research Radio", Description: "d"})

	require.NoError(t, w.Write([]models.Episode{episode("ep-phys-000001")}))
	require.NoError(t, w.Write(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ep-phys-000001")
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
