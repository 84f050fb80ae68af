package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/config"
	infraconfig "groundedmemory/infrastructure/config"
)

func TestLoadConfig_DefaultsToMemoryBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	cfg, err := infraconfig.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, infraconfig.StorageBackendMemory, cfg.StorageBackend)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "not-a-backend")
	_, err := infraconfig.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_DynamoDBRequiresTableNames(t *testing.T) {
	// LoadConfig treats an empty env var as unset and fills in the default
	// table names, so blank them on the loaded config and validate directly.
	t.Setenv("STORAGE_BACKEND", "dynamodb")
	cfg, err := infraconfig.LoadConfig()
	require.NoError(t, err)
	cfg.MemoryTableName = ""
	cfg.LedgerTableName = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadDocument_EmptyPathReturnsEmptyDocument(t *testing.T) {
	doc, err := infraconfig.LoadDocument("")
	require.NoError(t, err)
	assert.Nil(t, doc.ThetaContra)
}

func TestLoadDocument_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yaml")
	contents := `
theta_contra: 0.5
max_clarifying_questions_per_window: 3
recency_half_life: 48h
flags:
  enable_humble_wrapper: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	doc, err := infraconfig.LoadDocument(path)
	require.NoError(t, err)
	require.NotNil(t, doc.ThetaContra)
	assert.InDelta(t, 0.5, *doc.ThetaContra, 1e-9)
	require.NotNil(t, doc.MaxClarifyingQuestionsPerWindow)
	assert.Equal(t, 3, *doc.MaxClarifyingQuestionsPerWindow)
	require.NotNil(t, doc.RecencyHalfLife)
	assert.Equal(t, "48h0m0s", doc.RecencyHalfLife.Duration.String())
	assert.True(t, doc.FlagOverrides["enable_humble_wrapper"])
}

func TestDocument_MergeOnlyOverridesPresentFields(t *testing.T) {
	base := config.DefaultDomainConfig()
	theta := 0.9
	doc := &infraconfig.Document{ThetaContra: &theta}

	merged := doc.Merge(base)
	assert.Equal(t, 0.9, merged.ThetaContra)
	assert.Equal(t, base.ThetaMin, merged.ThetaMin)
	assert.Equal(t, base.WeightSimilarity, merged.WeightSimilarity)
}

func TestDocument_MergeDoesNotMutateBase(t *testing.T) {
	base := config.DefaultDomainConfig()
	originalTheta := base.ThetaContra
	theta := 0.9
	doc := &infraconfig.Document{ThetaContra: &theta}

	_ = doc.Merge(base)
	assert.Equal(t, originalTheta, base.ThetaContra)
}
