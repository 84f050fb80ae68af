package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/facts"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	return e
}

func TestExtract_EmployerWithAliasCollapsed(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("I work at Microsoft Corp.")
	require.Contains(t, out, facts.SlotEmployer)
	require.NotEmpty(t, out[facts.SlotEmployer])
	assert.Equal(t, "microsoft", out[facts.SlotEmployer][0].Value)
	assert.NotEmpty(t, out[facts.SlotEmployer][0].PatternID)
}

func TestExtract_BuriedFactMidParagraph(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("So I was catching up on emails yesterday, and I should mention I switched to the Seattle team last month; anyway the project is going well.")
	require.Contains(t, out, facts.SlotTeam)
	require.NotEmpty(t, out[facts.SlotTeam])
	assert.Contains(t, out[facts.SlotTeam][0].Value, "seattle")
}

func TestExtract_DistinctLanguageSlots(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("My favorite programming language is Rust, though I started with Python.")

	require.Contains(t, out, facts.SlotFavoriteLanguage)
	assert.Equal(t, "rust", out[facts.SlotFavoriteLanguage][0].Value)

	require.Contains(t, out, facts.SlotFirstLanguage)
	assert.Equal(t, "python", out[facts.SlotFirstLanguage][0].Value)
}

func TestExtract_WhitelistRejectsAdjacentVerb(t *testing.T) {
	e := newExtractor(t)

	// "working" contains the single-letter language "r"; the whitelist must
	// not bind to a substring inside another word.
	out := e.Extract("My favorite language is working out lately.")
	assert.NotContains(t, out, facts.SlotFavoriteLanguage)
}

func TestExtract_NumericSlots(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("I have been programming for 8 years, starting with Python.")
	require.Contains(t, out, facts.SlotProgrammingYears)
	assert.Equal(t, "8", out[facts.SlotProgrammingYears][0].Value)

	out = e.Extract("I am a senior engineer.")
	assert.NotContains(t, out, facts.SlotAgeYears, "no number in the window means no age fact")
}

func TestExtract_FreeSpanStopsAtClauseBreak(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("I live in Lisbon, but I travel a lot.")
	require.Contains(t, out, facts.SlotLocation)
	assert.Equal(t, "lisbon", out[facts.SlotLocation][0].Value)
}

func TestExtract_EmptyAndNoMatchInputs(t *testing.T) {
	e := newExtractor(t)

	assert.Empty(t, e.Extract(""))
	assert.Empty(t, e.Extract("The weather was nice over the weekend."))
}

func TestExtract_Deterministic(t *testing.T) {
	e := newExtractor(t)
	text := "Actually my favorite color is green now, and I work at Initech."

	first := e.Extract(text)
	second := e.Extract(text)
	assert.Equal(t, first, second)
}

func TestExtract_FavoriteColorWhitelist(t *testing.T) {
	e := newExtractor(t)

	out := e.Extract("My favorite color is blue.")
	require.Contains(t, out, facts.SlotFavoriteColor)
	assert.Equal(t, "blue", out[facts.SlotFavoriteColor][0].Value)
}
