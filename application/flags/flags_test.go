package flags_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/flags"
	"groundedmemory/domain/memory"
)

func TestNew_DefaultsMatchSpec(t *testing.T) {
	r, err := flags.New()
	require.NoError(t, err)

	assert.True(t, r.Enabled(flags.EnableReconstructionGates))
	assert.True(t, r.Enabled(flags.EnableContradictionDetection))
	assert.True(t, r.Enabled(flags.EnableParaphraseTolerance))
	assert.False(t, r.Enabled(flags.EnableHumbleWrapper))
	assert.False(t, r.Enabled(flags.EnableEmotionIntensity))
	assert.False(t, r.Enabled(flags.EnableAuxiliaryContradictionClassifier))
}

func TestNew_UnknownFlagDefaultsFalse(t *testing.T) {
	r, err := flags.New()
	require.NoError(t, err)
	assert.False(t, r.Enabled(flags.Name("not_a_real_flag")))
}

func TestNew_OverrideTakesEffect(t *testing.T) {
	r, err := flags.New(flags.WithOverride(flags.EnableHumbleWrapper, true))
	require.NoError(t, err)
	assert.True(t, r.Enabled(flags.EnableHumbleWrapper))
}

func TestNew_AuxiliaryClassifierRejectedWithoutScorer(t *testing.T) {
	_, err := flags.New(flags.WithOverride(flags.EnableAuxiliaryContradictionClassifier, true))
	require.Error(t, err)
}

type stubScorer struct{}

func (stubScorer) Score(oldValue, newValue string, oldVector, newVector memory.Vector) (float64, error) {
	return 0, nil
}

func TestNew_AuxiliaryClassifierAllowedWithScorer(t *testing.T) {
	r, err := flags.New(
		flags.WithAuxiliaryScorer(stubScorer{}),
		flags.WithOverride(flags.EnableAuxiliaryContradictionClassifier, true),
	)
	require.NoError(t, err)
	assert.True(t, r.Enabled(flags.EnableAuxiliaryContradictionClassifier))
	assert.NotNil(t, r.AuxiliaryScorer())
}

func TestDefinition_KnownFlagHasMetadata(t *testing.T) {
	r, err := flags.New()
	require.NoError(t, err)
	d, ok := r.Definition(flags.EnableSelfQuestioning)
	require.True(t, ok)
	assert.Equal(t, flags.EnableSelfQuestioning, d.Name)
	assert.NotEmpty(t, d.Description)
}

func TestAll_ReturnsACopy(t *testing.T) {
	r, err := flags.New()
	require.NoError(t, err)
	snapshot := r.All()
	snapshot[flags.EnableHumbleWrapper] = true
	assert.False(t, r.Enabled(flags.EnableHumbleWrapper), "mutating the snapshot must not affect the registry")
}
