package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedTexts_NormalizedAndDeterministic(t *testing.T) {
	e := New(64)
	vecs, err := e.EmbedTexts(context.Background(), []string{"Handling price objections", "Handling price objections"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Len(t, vecs[0], 64)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedTexts_SimilarTextScoresHigher(t *testing.T) {
	e := New(384)
	vecs, err := e.EmbedTexts(context.Background(), []string{
		"how do I handle price objections from the CFO",
		"the CFO raised price objections again",
		"scheduling a team offsite in the mountains",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmbedTexts_PunctuationOnlyStillEmbeds(t *testing.T) {
	e := New(16)
	vecs, err := e.EmbedTexts(context.Background(), []string{"?!"})
	require.NoError(t, err)
	require.Len(t, vecs[0], 16)
}

func TestEmbedTexts_EmptyFails(t *testing.T) {
	_, err := New(16).EmbedTexts(context.Background(), []string{"   "})
	require.Error(t, err)
}
