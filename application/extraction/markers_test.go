package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCorrectionMarker(t *testing.T) {
	assert.True(t, HasCorrectionMarker("Actually my favorite color is green now."))
	assert.True(t, HasCorrectionMarker("Sorry, I meant Amazon."))
	assert.True(t, HasCorrectionMarker("Definitely Amazon, not Microsoft."))
	assert.False(t, HasCorrectionMarker("My favorite color is blue."))
}

func TestHasTemporalMarker(t *testing.T) {
	assert.True(t, HasTemporalMarker("I moved to Seattle."))
	assert.True(t, HasTemporalMarker("I used to work at Acme."))
	assert.True(t, HasTemporalMarker("I switched teams last week."))
	assert.False(t, HasTemporalMarker("My favorite color is blue."))
}

func TestHasTemporalMarker_ParseableDate(t *testing.T) {
	assert.True(t, HasTemporalMarker("I joined on 2024-03-01"))
	assert.False(t, HasTemporalMarker("I bought 3 apples."), "bare small numbers are not dates")
}

func TestKeyElements_NumericAndProperNouns(t *testing.T) {
	got := KeyElements("I have been with Acme Corp in Portland for 8 years.")
	assert.True(t, got["acme"])
	assert.True(t, got["corp"])
	assert.True(t, got["portland"])
	assert.True(t, got["8"])
	assert.False(t, got["been"], "lowercase tokens are not key elements")
}

func TestKeyElements_SentenceInitialCapitalIgnored(t *testing.T) {
	got := KeyElements("Portland is where I live.")
	assert.False(t, got["portland"], "sentence-initial capitalization is not a proper-noun signal")
}

func TestKeyElementOverlap(t *testing.T) {
	a := "I have been with Acme Corp in Portland for 8 years."
	b := "Still at Acme Corp here in Portland, 8 years and counting."
	assert.GreaterOrEqual(t, KeyElementOverlap(a, b), 0.7)

	assert.Equal(t, 0.0, KeyElementOverlap("no proper nouns here", "nothing here either"))
}
