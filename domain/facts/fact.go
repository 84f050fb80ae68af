// Package facts defines the typed slot/value model extracted from free
// text. Slot names are a closed set; distinct slots are never
// cross-compared by the contradiction detector.
package facts

import "groundedmemory/domain/ids"

// Slot is one of the closed set of recognized semantic attributes.
type Slot string

const (
	SlotEmployer          Slot = "employer"
	SlotLocation           Slot = "location"
	SlotTitle              Slot = "title"
	SlotFirstLanguage      Slot = "first_language"
	SlotFavoriteLanguage   Slot = "favorite_language"
	SlotProgrammingLang    Slot = "programming_language"
	SlotAgeYears           Slot = "age_years"
	SlotProgrammingYears   Slot = "programming_years"
	SlotMastersSchool      Slot = "masters_school"
	SlotFavoriteColor      Slot = "favorite_color"
	SlotTeam               Slot = "team"
)

// KnownSlots is the full closed registry of slot names the extractor may
// produce. A pattern table entry must exist for each (see
// application/extraction).
var KnownSlots = []Slot{
	SlotEmployer,
	SlotLocation,
	SlotTitle,
	SlotFirstLanguage,
	SlotFavoriteLanguage,
	SlotProgrammingLang,
	SlotAgeYears,
	SlotProgrammingYears,
	SlotMastersSchool,
	SlotFavoriteColor,
	SlotTeam,
}

// ExtractedFact is a typed slot/value pair derived from text.
type ExtractedFact struct {
	Slot           Slot
	Value          string // normalized: lowercased, trimmed, aliases collapsed
	RawValue       string // pre-normalization, for audit/testing
	OriginMemoryID *ids.MemoryID
	PatternID      string
}

// SlotKey is a coarser identity than Slot alone: slot plus a normalized
// subject, used when the extractor cannot guarantee the literal slot name
// matched but the underlying attribute is the same.
type SlotKey struct {
	Slot    Slot
	Subject string
}

func (f ExtractedFact) Key(subject string) SlotKey {
	return SlotKey{Slot: f.Slot, Subject: subject}
}
