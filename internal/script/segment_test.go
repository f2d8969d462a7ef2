package script

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/models"
)

var aliases = map[string][]string{"bryan": {"brian"}}

func selection() models.VoiceSelection {
	return models.VoiceSelection{
		Host:   models.Speaker{Name: "bryan", VoiceID: "voice-a"},
		Expert: models.Speaker{Name: "bella", VoiceID: "voice-b"},
	}
}

func TestSegmentResolvesAliases(t *testing.T) {
	text := "BRIAN: Welcome to the show.\nBELLA: Thanks for having me.\n\nBRIAN: Let's begin."

	segments, err := Segment(text, selection(), aliases)

	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, models.RoleHost, segments[0].Role)
	assert.Equal(t, "voice-a", segments[0].VoiceID)
	assert.Equal(t, "Welcome to the show.", segments[0].Text)
	assert.Equal(t, models.RoleExpert, segments[1].Role)
	assert.Equal(t, "voice-b", segments[1].VoiceID)
	assert.Equal(t, "voice-a", segments[2].VoiceID)
	for i, s := range segments {
		assert.Equal(t, i, s.Index)
	}
}

func TestSegmentCanonicalNameOfChosenAlias(t *testing.T) {
	sel := selection()
	sel.Host.Name = "Brian"

	segments, err := Segment("Bryan: hi\nBella: hello", sel, aliases)

	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleHost, models.RoleExpert}, Roles(segments))
}

func TestSegmentMappingFollowsSelection(t *testing.T) {
	// Same script, swapped roles: the mapping must come from the caller.
	sel := models.VoiceSelection{
		Host:   models.Speaker{Name: "bella", VoiceID: "voice-b"},
		Expert: models.Speaker{Name: "bryan", VoiceID: "voice-a"},
	}

	segments, err := Segment("BRIAN: one\nBELLA: two", sel, aliases)

	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleExpert, models.RoleHost}, Roles(segments))
	assert.Equal(t, "voice-a", segments[0].VoiceID)
}

func TestSegmentMarkdownLabels(t *testing.T) {
	segments, err := Segment("**Bryan:** Hello there.\n*Bella*: Hi.\n- bella: Bullet line.", selection(), nil)

	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, "Hello there.", segments[0].Text)
	assert.Equal(t, models.RoleExpert, segments[1].Role)
	assert.Equal(t, "Bullet line.", segments[2].Text)
}

func TestSegmentRejectsUnmatchedLines(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown speaker", "Bryan: hi\nNarrator: meanwhile", "line 2: unknown speaker"},
		{"no label", "Bryan: hi\n\nthis line continues the thought", "line 3 has no speaker label"},
		{"empty utterance", "Bryan:", "says nothing"},
		{"empty script", "\n\n", "no dialogue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Segment(tt.script, selection(), aliases)
			require.ErrorIs(t, err, ErrParse)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewResolverRejectsCollisions(t *testing.T) {
	sel := models.VoiceSelection{
		Host:   models.Speaker{Name: "bryan", VoiceID: "a"},
		Expert: models.Speaker{Name: "brian", VoiceID: "b"},
	}
	_, err := NewResolver(sel, aliases)
	assert.Error(t, err)

	sel.Expert.Name = "Bryan"
	_, err = NewResolver(sel, nil)
	assert.Error(t, err)

	_, err = NewResolver(models.VoiceSelection{Host: models.Speaker{Name: "a"}, Expert: models.Speaker{Name: "b"}}, nil)
	assert.Error(t, err, "voices are required")
}

func TestSegmentRoundTripPreservesSpeakerSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sel := selection()
	for run := 0; run < 50; run++ {
		n := 1 + rng.Intn(40)
		want := make([]models.Role, n)
		var b strings.Builder
		for i := range want {
			if rng.Intn(2) == 0 {
				want[i] = models.RoleHost
				fmt.Fprintf(&b, "%s: line %d\n", []string{"Bryan", "BRIAN", "**brian**"}[rng.Intn(3)], i)
			} else {
				want[i] = models.RoleExpert
				fmt.Fprintf(&b, "Bella: line %d\n", i)
			}
			if rng.Intn(4) == 0 {
				b.WriteString("\n")
			}
		}

		segments, err := Segment(b.String(), sel, aliases)

		require.NoError(t, err)
		assert.Equal(t, want, Roles(segments))
	}
}
