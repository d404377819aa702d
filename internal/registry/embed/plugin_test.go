package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmbedder struct{ dim int }

func (f fixedEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f fixedEmbedder) ModelName() string                                         { return "fixed" }
func (f fixedEmbedder) Dimension() int                                            { return f.dim }

func TestCheckDimension(t *testing.T) {
	e := fixedEmbedder{dim: 3}
	require.NoError(t, CheckDimension(e, []float32{1, 0, 0}))

	err := CheckDimension(e, []float32{1, 0})
	var mismatch *DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, DimensionMismatchError{Model: "fixed", Got: 2, Want: 3}, *mismatch)
}

func TestVerifyDimension(t *testing.T) {
	require.NoError(t, VerifyDimension(fixedEmbedder{dim: 384}, 384))
	require.ErrorContains(t, VerifyDimension(fixedEmbedder{dim: 1536}, 384), "configured space has 384")
}
