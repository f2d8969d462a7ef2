package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"research-podcaster/internal/models"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]column{left("Name"), right("Count")}, [][]string{{"alpha", "3"}, {"beta"}, {"gamma", "12", "extra"}})
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Count")
	assert.NotContains(t, out, "NAME")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.NotContains(t, out, "extra")
	assert.True(t, strings.HasPrefix(out, "╭"))
	assert.True(t, strings.HasSuffix(out, "╯\n"))
	assert.Empty(t, renderTable(nil, nil))
}

func TestBuildEpisodeRows(t *testing.T) {
	rows := buildEpisodeRows([]models.Episode{
		{CanonicalFilename: "ep-phys-000002", Title: "Neutrinos", Category: "physics", DurationSeconds: 754, SubmittedToFeed: true, PromotedAt: time.Now()},
		{CanonicalFilename: "ep-phys-000001", Title: "Muons", Category: "physics"},
	})
	assert.Equal(t, "ep-phys-000002", rows[0][0])
	assert.Equal(t, "12m34s", rows[0][3])
	assert.Equal(t, "yes", rows[0][4])
	assert.Equal(t, "-", rows[1][3])
	assert.Equal(t, "no", rows[1][4])
}

func TestBuildJobDetailIncludesFailure(t *testing.T) {
	kind := models.ErrorInsufficientEvidence
	msg := "Only 1 sources found"
	rows := buildJobDetail(&models.Job{ID: "j", Topic: "t", Status: models.StatusFailed, ErrorKind: &kind, Error: &msg})
	last := map[string]string{}
	for _, r := range rows {
		last[r[0]] = r[1]
	}
	assert.Equal(t, "insufficient_evidence: Only 1 sources found", last["Error"])
	_, hasFilename := last["Filename"]
	assert.False(t, hasFilename)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
