package extraction

import "groundedmemory/domain/facts"

// SlotDefinition is one entry in the closed slot registry. Each slot
// carries the phrases that introduce it, an optional whitelist that
// constrains which values are accepted, and an alias table collapsing
// surface variants to a canonical value.
type SlotDefinition struct {
	Slot facts.Slot

	// Triggers are the lexical contexts that must precede a value for this
	// slot to fire at all. A slot with no whitelist leans on these to stay
	// high-precision rather than capturing generic nouns.
	Triggers []string

	// Whitelist restricts accepted values to a known set (e.g.
	// favorite_language only accepts recognized programming languages).
	// Empty means the slot captures whatever free-text window follows a
	// trigger, bounded by WindowTokens.
	Whitelist []string

	// Aliases maps a raw surface form to its canonical value
	// ("microsoft corp" -> "microsoft").
	Aliases map[string]string

	// Numeric slots capture the first integer found in the window instead
	// of a lexical span.
	Numeric bool

	// WindowTokens bounds how many tokens past a trigger are scanned for a
	// free-text value.
	WindowTokens int
}

// DefaultRegistry returns the closed set of slot definitions the core
// ships with.
func DefaultRegistry() []SlotDefinition {
	return []SlotDefinition{
		{
			Slot:         facts.SlotEmployer,
			Triggers:     []string{"works at", "work at", "employed at", "employed by", "i work for"},
			Aliases:      map[string]string{"microsoft corp": "microsoft", "microsoft corporation": "microsoft", "amazon.com": "amazon", "google llc": "google"},
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotLocation,
			Triggers:     []string{"switched to the", "moved to", "based in", "located in", "i live in", "relocated to"},
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotTitle,
			Triggers:     []string{"my title is", "i am a", "i'm a", "promoted to"},
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotFirstLanguage,
			Triggers:     []string{"first language is", "native language is", "started with", "starting with"},
			Whitelist:    programmingLanguages,
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotFavoriteLanguage,
			Triggers:     []string{"favorite language is", "favorite programming language is", "favourite language is"},
			Whitelist:    programmingLanguages,
			WindowTokens: 5,
		},
		{
			Slot:         facts.SlotProgrammingLang,
			Triggers:     []string{"programming in", "coding in", "writing", "language is"},
			Whitelist:    programmingLanguages,
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotAgeYears,
			Triggers:     []string{"i am", "i'm", "years old"},
			Numeric:      true,
			WindowTokens: 3,
		},
		{
			Slot:         facts.SlotProgrammingYears,
			Triggers:     []string{"programming for", "coding for", "been programming for"},
			Numeric:      true,
			WindowTokens: 3,
		},
		{
			Slot:         facts.SlotMastersSchool,
			Triggers:     []string{"master's at", "masters at", "graduate school at", "grad school at"},
			WindowTokens: 4,
		},
		{
			Slot:         facts.SlotFavoriteColor,
			Triggers:     []string{"favorite color is", "favourite colour is", "favorite colour is"},
			Whitelist:    commonColors,
			WindowTokens: 3,
		},
		{
			Slot:         facts.SlotTeam,
			Triggers:     []string{"switched to the", "joined the", "moved to the", "now on the"},
			WindowTokens: 4,
		},
	}
}

var programmingLanguages = []string{
	"python", "go", "golang", "rust", "java", "javascript", "typescript",
	"c", "c++", "c#", "ruby", "php", "swift", "kotlin", "scala", "haskell",
	"elixir", "clojure", "perl", "lua", "r",
}

var commonColors = []string{
	"red", "blue", "green", "yellow", "orange", "purple", "black", "white",
	"pink", "brown", "gray", "grey", "teal", "violet", "indigo", "cyan",
}
