package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/memory"
)

func TestEmbed_Deterministic(t *testing.T) {
	e := NewHashingEmbedder()
	ctx := context.Background()

	a, modelA, err := e.Embed(ctx, "I work at Acme Corp.")
	require.NoError(t, err)
	b, modelB, err := e.Embed(ctx, "I work at Acme Corp.")
	require.NoError(t, err)

	assert.Equal(t, ModelID, modelA)
	assert.Equal(t, modelA, modelB)
	assert.Equal(t, a, b)
}

func TestEmbed_UnitNorm(t *testing.T) {
	e := NewHashingEmbedder()

	v, _, err := e.Embed(context.Background(), "a short sentence with several tokens in it")
	require.NoError(t, err)
	require.Len(t, []float64(v), memory.Dim)

	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-9)
}

func TestEmbed_EmptyTextStillUnitVector(t *testing.T) {
	e := NewHashingEmbedder()

	v, _, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	assert.InDelta(t, 0.0, memory.Drift(v, v), 1e-9)
}

func TestEmbed_DriftRisesWithDisjointTokens(t *testing.T) {
	e := NewHashingEmbedder()
	ctx := context.Background()

	base, _, err := e.Embed(ctx, "my favorite color is blue")
	require.NoError(t, err)
	near, _, err := e.Embed(ctx, "my favorite color is green")
	require.NoError(t, err)
	far, _, err := e.Embed(ctx, "quarterly revenue exceeded projections")
	require.NoError(t, err)

	assert.Less(t, memory.Drift(base, near), memory.Drift(base, far),
		"mostly-shared token sets should drift less than disjoint ones")
}

func TestDrift_MissingVectorIsMaximum(t *testing.T) {
	e := NewHashingEmbedder()
	v, _, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, 1.0, Drift(nil, v))
	assert.Equal(t, 1.0, Drift(v, nil))
}
