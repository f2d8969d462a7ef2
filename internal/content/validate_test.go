package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-podcaster/internal/models"
)

func TestTraceReferencesMatchesArxivForms(t *testing.T) {
	rc := models.ResearchContext{Sources: []models.ResearchSource{
		{Title: "Prime gaps", DOIOrURL: "https://arxiv.org/abs/2301.00001", ProviderName: "arxiv"},
		{Title: "Sieve bounds", DOIOrURL: "https://doi.org/10.1000/sieve", ProviderName: "zenodo"},
	}}

	for _, id := range []string{"arXiv:2301.00001", "2301.00001v3", "http://arxiv.org/abs/2301.00001v2"} {
		refs, err := traceReferences([]payloadReference{{Identifier: id}}, rc)
		require.NoError(t, err, id)
		require.Len(t, refs, 1)
		assert.Equal(t, "https://arxiv.org/abs/2301.00001", refs[0].Identifier)
	}

	refs, err := traceReferences([]payloadReference{{Identifier: "doi:10.1000/SIEVE"}}, rc)
	require.NoError(t, err)
	assert.Equal(t, 2, refs[0].Index)

	_, err = traceReferences([]payloadReference{{Identifier: "arXiv:2301.09999"}}, rc)
	assert.ErrorIs(t, err, errInvalid)
}
