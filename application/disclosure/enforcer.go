// Package disclosure implements the disclosure enforcer: deterministic
// caveat injection before generation and phrase-family verification after
// generation, so a reintroduced but superseded value is never presented
// without qualification. Matching is per phrase family rather than a
// single regex; a lone pattern produces false "missing" verdicts on
// paraphrased caveats.
package disclosure

import (
	"fmt"
	"strings"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
)

// CaveatOutcome classifies the post-generation caveat verdict.
type CaveatOutcome string

const (
	OutcomeDisclosedNeeded      CaveatOutcome = "DISCLOSED_NEEDED"
	OutcomeDisclosedUnnecessary CaveatOutcome = "DISCLOSED_UNNECESSARY"
	OutcomeMissingNeeded        CaveatOutcome = "MISSING_NEEDED"
	OutcomeAbsentCorrect        CaveatOutcome = "ABSENT_CORRECT"
)

// phraseFamilies are the caveat shapes the enforcer recognizes; each entry
// is one semantic family expressed as several literal surface forms,
// avoiding a single brittle regex.
var phraseFamilies = [][]string{
	{"updated from", "update from"},
	{"changed from", "change from"},
	{"previously", "used to be", "was previously"},
	{"now,", "now it's", "now it is", "as of"},
	{"superseded", "supersedes"},
}

// RequiredDisclosure names the superseded value a caveat must reference.
type RequiredDisclosure struct {
	Slot          string
	OldValue      string
	NewValue      string
	Contradiction *contradiction.Record
}

// Enforcer implements caveat injection and verification.
type Enforcer struct{}

func New() *Enforcer {
	return &Enforcer{}
}

// RequiredDisclosures computes which retrieved memories are implicated by
// an OPEN or RESOLVING ledger record for this thread and therefore require
// a caveat. DUPLICATE records are silent audit entries and never require one.
func (e *Enforcer) RequiredDisclosures(retrieved []ports.ScoredMemory, open []*contradiction.Record) []RequiredDisclosure {
	var required []RequiredDisclosure
	for _, sm := range retrieved {
		for _, rec := range open {
			if rec.Status() != contradiction.StatusOpen && rec.Status() != contradiction.StatusResolving {
				continue
			}
			if rec.Type() == contradiction.TypeDuplicate {
				continue
			}
			if rec.OldMemoryID().Equals(sm.Memory.ID()) || rec.NewMemoryID().Equals(sm.Memory.ID()) {
				required = append(required, RequiredDisclosure{
					Slot:          string(rec.Slot()),
					OldValue:      rec.OldValue(),
					NewValue:      rec.NewValue(),
					Contradiction: rec,
				})
			}
		}
	}
	return required
}

// Inject appends a deterministic caveat to the pre-generation prompt
// context for every required disclosure, so the language layer is
// instructed to surface it rather than the enforcer having to detect its
// absence after the fact and retry. Injection happens pre- and
// post-generation.
func (e *Enforcer) Inject(promptContext []string, required []RequiredDisclosure) []string {
	out := make([]string, len(promptContext))
	copy(out, promptContext)
	for _, r := range required {
		out = append(out, fmt.Sprintf("(updated from %s to %s)", r.OldValue, r.NewValue))
	}
	return out
}

// Verify checks emitted output against the required disclosures computed
// for this turn, returning one CaveatOutcome per required disclosure, or a
// single outcome when none is required. A caveat present with no open contradiction at all
// is tracked as noise (DISCLOSED_UNNECESSARY), not a failure.
func (e *Enforcer) Verify(emittedOutput string, required []RequiredDisclosure) []CaveatOutcome {
	lower := strings.ToLower(emittedOutput)
	hasAnyCaveat := containsAnyCaveatPhrase(lower)

	if len(required) == 0 {
		if hasAnyCaveat {
			return []CaveatOutcome{OutcomeDisclosedUnnecessary}
		}
		return []CaveatOutcome{OutcomeAbsentCorrect}
	}

	outcomes := make([]CaveatOutcome, 0, len(required))
	for _, r := range required {
		if mentionsDisclosure(lower, r) {
			outcomes = append(outcomes, OutcomeDisclosedNeeded)
		} else {
			outcomes = append(outcomes, OutcomeMissingNeeded)
		}
	}
	return outcomes
}

// mentionsDisclosure reports whether the output both names the superseded
// value and uses one of the recognized caveat phrase families.
func mentionsDisclosure(lowerOutput string, r RequiredDisclosure) bool {
	oldLower := strings.ToLower(r.OldValue)
	if oldLower == "" || !strings.Contains(lowerOutput, oldLower) {
		return false
	}
	return containsAnyCaveatPhrase(lowerOutput)
}

func containsAnyCaveatPhrase(lowerText string) bool {
	for _, family := range phraseFamilies {
		for _, phrase := range family {
			if strings.Contains(lowerText, phrase) {
				return true
			}
		}
	}
	return false
}
