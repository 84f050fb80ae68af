// Package extraction implements the fact extractor: a closed,
// high-precision, whitelist-aware slot extractor. Multi-pattern trigger and
// whitelist scanning is done with a single Aho-Corasick automaton per
// concern, rather than running one regular expression per slot per call.
package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/coregx/ahocorasick"

	"groundedmemory/domain/facts"
)

// Extractor is a pure function of text: identical input always produces
// identical output.
type Extractor struct {
	defs        []SlotDefinition
	triggerAC   *ahocorasick.Automaton
	triggerSlot []facts.Slot // pattern index -> owning slot
	triggerText []string     // pattern index -> trigger text (for pattern_id)

	whitelistAC    map[facts.Slot]*ahocorasick.Automaton
	whitelistValue map[facts.Slot][]string // pattern index -> canonical whitelist value
}

var numberPattern = regexp.MustCompile(`\d+`)

// New builds an Extractor from the closed default slot registry.
func New() (*Extractor, error) {
	return NewFromRegistry(DefaultRegistry())
}

// NewFromRegistry builds an Extractor from a caller-supplied registry,
// primarily for tests that need a narrower slot set.
func NewFromRegistry(defs []SlotDefinition) (*Extractor, error) {
	e := &Extractor{
		defs:           defs,
		whitelistAC:    make(map[facts.Slot]*ahocorasick.Automaton),
		whitelistValue: make(map[facts.Slot][]string),
	}

	var allTriggers []string
	for _, def := range defs {
		for _, trig := range def.Triggers {
			e.triggerSlot = append(e.triggerSlot, def.Slot)
			e.triggerText = append(e.triggerText, trig)
			allTriggers = append(allTriggers, strings.ToLower(trig))
		}

		if len(def.Whitelist) > 0 {
			ac, err := ahocorasick.NewBuilder().
				AddStrings(lower(def.Whitelist)).
				SetMatchKind(ahocorasick.LeftmostLongest).
				SetPrefilter(true).
				Build()
			if err != nil {
				return nil, err
			}
			e.whitelistAC[def.Slot] = ac
			e.whitelistValue[def.Slot] = lower(def.Whitelist)
		}
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(allTriggers).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	e.triggerAC = ac

	return e, nil
}

// Extract implements ports.FactExtractor. It never panics and never returns
// an error: a slot that fails to match is simply absent from the result.
func (e *Extractor) Extract(text string) map[facts.Slot][]facts.ExtractedFact {
	out := make(map[facts.Slot][]facts.ExtractedFact)
	if text == "" || e.triggerAC == nil {
		return out
	}

	lower := strings.ToLower(text)
	matches := e.triggerAC.FindAllOverlapping([]byte(lower))

	defByS := make(map[facts.Slot]SlotDefinition, len(e.defs))
	for _, d := range e.defs {
		defByS[d.Slot] = d
	}

	for _, m := range matches {
		slot := e.triggerSlot[m.PatternID]
		trig := e.triggerText[m.PatternID]
		def := defByS[slot]

		windowEnd := m.End + windowByteBudget(def.WindowTokens)
		if windowEnd > len(lower) {
			windowEnd = len(lower)
		}
		window := lower[m.End:windowEnd]

		fact, ok := e.extractFromWindow(def, window, trig)
		if !ok {
			continue
		}
		out[slot] = append(out[slot], fact)
	}
	return out
}

func (e *Extractor) extractFromWindow(def SlotDefinition, window, trigger string) (facts.ExtractedFact, bool) {
	patternID := string(def.Slot) + "#" + trigger

	switch {
	case def.Numeric:
		m := numberPattern.FindString(window)
		if m == "" {
			return facts.ExtractedFact{}, false
		}
		if _, err := strconv.Atoi(m); err != nil {
			return facts.ExtractedFact{}, false
		}
		return facts.ExtractedFact{Slot: def.Slot, Value: m, RawValue: m, PatternID: patternID}, true

	case len(def.Whitelist) > 0:
		value, ok := e.matchWhitelist(def.Slot, window)
		if !ok {
			return facts.ExtractedFact{}, false
		}
		return facts.ExtractedFact{Slot: def.Slot, Value: value, RawValue: value, PatternID: patternID}, true

	default:
		raw := captureFreeSpan(window)
		if raw == "" {
			return facts.ExtractedFact{}, false
		}
		normalized := normalizeValue(raw, def.Aliases)
		return facts.ExtractedFact{Slot: def.Slot, Value: normalized, RawValue: raw, PatternID: patternID}, true
	}
}

// matchWhitelist scans the post-trigger window with the slot's whitelist
// automaton and accepts the leftmost match within the first few words, so
// "favorite language is Rust, though I started with Python" binds to the
// value immediately after the trigger rather than a later mention.
func (e *Extractor) matchWhitelist(slot facts.Slot, window string) (string, bool) {
	ac := e.whitelistAC[slot]
	if ac == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(window)
	trimmed = strings.TrimPrefix(trimmed, "the ")
	trimmed = strings.TrimPrefix(trimmed, "a ")
	trimmed = strings.TrimPrefix(trimmed, "an ")

	leadWindow := trimmed
	if len(leadWindow) > 24 {
		leadWindow = leadWindow[:24]
	}

	matches := ac.FindAllOverlapping([]byte(leadWindow))
	best := -1
	bestLen := 0
	var bestValue string
	for _, m := range matches {
		// A whitelist hit must sit on word boundaries, or "working" would
		// match the single-letter language "r".
		if !onWordBoundary(leadWindow, m.Start, m.End) {
			continue
		}
		if best == -1 || m.Start < best || (m.Start == best && m.End-m.Start > bestLen) {
			best = m.Start
			bestLen = m.End - m.Start
			bestValue = e.whitelistValue[slot][m.PatternID]
		}
	}
	if best == -1 {
		return "", false
	}
	return bestValue, true
}

func onWordBoundary(s string, start, end int) bool {
	if start > 0 && isWordByte(s[start-1]) {
		return false
	}
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// sentenceBreakers stop a free-text capture from running past the clause
// that actually names the value, so a fact buried mid-paragraph does not
// drag the rest of the sentence in as its value.
var sentenceBreakers = []string{",", ";", ".", " and ", " but ", " so ", " anyway", " when ", " last month", " last week"}

func captureFreeSpan(window string) string {
	trimmed := strings.TrimSpace(window)
	trimmed = strings.TrimPrefix(trimmed, "the ")
	trimmed = strings.TrimPrefix(trimmed, "a ")
	trimmed = strings.TrimPrefix(trimmed, "an ")

	cut := len(trimmed)
	for _, brk := range sentenceBreakers {
		if idx := strings.Index(trimmed, brk); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	span := strings.TrimSpace(trimmed[:cut])
	if span == "" {
		return ""
	}
	// Cap at a handful of words; a free-text slot value is a noun phrase,
	// not a runaway clause.
	words := strings.Fields(span)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

func normalizeValue(raw string, aliases map[string]string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.Join(strings.Fields(v), " ")
	if aliases != nil {
		if mapped, ok := aliases[v]; ok {
			return mapped
		}
	}
	return v
}

// windowByteBudget converts a token budget into a generous byte budget for
// slicing the post-trigger window; exact tokenization happens inside
// captureFreeSpan/matchWhitelist.
func windowByteBudget(tokens int) int {
	if tokens <= 0 {
		tokens = 4
	}
	return tokens*12 + 16
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
