package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

func unitVector(t *testing.T, axis int) memory.Vector {
	t.Helper()
	raw := make([]float64, memory.Dim)
	raw[axis] = 1.0
	v, err := memory.NewVector(raw)
	require.NoError(t, err)
	return v
}

func baseCandidate(t *testing.T) Candidate {
	return Candidate{
		Slot:            facts.SlotEmployer,
		NewFact:         facts.ExtractedFact{Slot: facts.SlotEmployer, Value: "initech"},
		NewMemoryID:     ids.NewMemoryID(),
		NewVector:       unitVector(t, 1),
		NewSource:       memory.SourceUser,
		NewTrust:        0.9,
		NewConfidence:   0.9,
		NewText:         "I now work at Initech.",
		PriorMemoryID:   ids.NewMemoryID(),
		PriorVector:     unitVector(t, 0),
		PriorValue:      "acme corp",
		PriorText:       "I work at Acme Corp.",
		PriorTrust:      0.9,
		PriorConfidence: 0.9,
	}
}

func testThreadID(t *testing.T) ids.ThreadID {
	t.Helper()
	tid, err := ids.NewThreadID("thread-1")
	require.NoError(t, err)
	return tid
}

func TestDetect_HighDriftFires(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)

	assert.True(t, out[0].Fired)
	assert.Equal(t, ReasonHighDrift, out[0].Reason)
	require.NotNil(t, out[0].Record)
	assert.Equal(t, contradiction.TypeTemporal, out[0].Record.Type())
}

func TestDetect_NoPriorFactIsNotAContradiction(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)
	c.PriorValue = ""

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.False(t, out[0].Fired)
	assert.Equal(t, ReasonNoPriorFact, out[0].Reason)
}

func TestDetect_ParaphraseToleranceSuppressesContradiction(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	d := New(cfg)
	c := baseCandidate(t)

	// Vector placed to land inside the paraphrase drift window: dot with
	// the prior's axis-0 unit vector is 0.6, so drift is 0.4.
	raw := make([]float64, memory.Dim)
	raw[0] = 0.6
	raw[1] = 0.8
	v, err := memory.NewVector(raw)
	require.NoError(t, err)
	c.NewVector = v

	c.PriorValue = "acme corp"
	c.PriorText = "I've been with Acme Corp in Portland for 8 years."
	c.NewFact.Value = "acme corporation"
	c.NewText = "Still at Acme Corp here in Portland, 8 years and counting."

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.False(t, out[0].Fired)
	assert.Equal(t, ReasonParaphrase, out[0].Reason)
}

func TestDetect_EqualValuesShortCircuitBeforeParaphrase(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)
	c.PriorValue = "acme corp"
	c.NewFact.Value = "acme corp"
	c.NewText = "I still work at Acme Corp, the big one downtown."

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.False(t, out[0].Fired)
	assert.Equal(t, ReasonNone, out[0].Reason)
}

func TestDetect_LowTrustNoiseSuppressed(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	d := New(cfg)
	c := baseCandidate(t)
	c.NewTrust = 0.2
	c.PriorTrust = 0.6

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.False(t, out[0].Fired)
	assert.Equal(t, ReasonLowTrust, out[0].Reason)
}

func TestDetect_CorrectionMarkerClassifiesRevision(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)
	c.NewText = "Actually, I meant I work at Initech now, not Acme."

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	require.True(t, out[0].Fired)
	assert.Equal(t, contradiction.TypeRevision, out[0].Record.Type())
}

func TestDetect_TemporalMarkerClassifiesTemporal(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)
	c.NewText = "I moved to Initech last month."

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	require.True(t, out[0].Fired)
	assert.Equal(t, contradiction.TypeTemporal, out[0].Record.Type())
}

func TestDetect_FallbackSourceLowerBar(t *testing.T) {
	// Raise theta_contra above theta_fallback so the fallback-specific rule
	// is the one that actually fires, isolating it from the high-drift rule.
	cfg := config.DefaultDomainConfig()
	cfg.ThetaContra = 0.90
	cfg.ThetaDrop = 0.90
	d := New(cfg)
	c := baseCandidate(t)
	c.NewSource = memory.SourceFallback

	raw := make([]float64, memory.Dim)
	raw[0] = 0.5
	raw[1] = 0.866
	v, err := memory.NewVector(raw)
	require.NoError(t, err)
	c.NewVector = v

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.True(t, out[0].Fired)
	assert.Equal(t, ReasonFallbackDrift, out[0].Reason)
}

func TestDetect_DuplicateValueConfidenceDeltaRecorded(t *testing.T) {
	d := New(config.DefaultDomainConfig())
	c := baseCandidate(t)
	c.NewFact.Value = "acme corp"
	c.PriorValue = "acme corp"
	c.NewConfidence = 0.95
	c.PriorConfidence = 0.40

	out := d.Detect(testThreadID(t), []Candidate{c}, time.Now())
	require.Len(t, out, 1)
	assert.True(t, out[0].Fired)
	assert.Equal(t, ReasonDuplicateValue, out[0].Reason)
	assert.Equal(t, contradiction.TypeDuplicate, out[0].Record.Type())
}
