// Package flags implements the feature flag registry: a typed,
// read-only-after-load set of named booleans governing which parts of the
// turn pipeline are active. A registry is constructed once per process
// (or per test) from the compiled-in defaults plus document overrides, then never
// mutated from a request path.
package flags

import (
	"fmt"

	"groundedmemory/domain/contradiction"
)

// Name identifies one feature flag.
// enable_auxiliary_contradiction_classifier makes the ML-backed auxiliary
// classifier flag-addressable without implementing it; it defaults to off,
// and New rejects enabling it unless a scorer is injected.
type Name string

const (
	EnableReconstructionGates           Name = "enable_reconstruction_gates"
	EnableGroundingCheck                Name = "enable_grounding_check"
	EnableResponseTypeGates             Name = "enable_response_type_gates"
	EnableContradictionDetection        Name = "enable_contradiction_detection"
	EnableContradictionLifecycle        Name = "enable_contradiction_lifecycle"
	EnableDisclosurePolicy              Name = "enable_disclosure_policy"
	EnableSelfQuestioning               Name = "enable_self_questioning"
	EnableHumbleWrapper                 Name = "enable_humble_wrapper"
	EnableEmotionIntensity              Name = "enable_emotion_intensity"
	EnableCaveatInjection               Name = "enable_caveat_injection"
	EnableRetrievalFirstPrompt          Name = "enable_retrieval_first_prompt"
	EnableParaphraseTolerance           Name = "enable_paraphrase_tolerance"
	EnableAuxiliaryContradictionClassifier Name = "enable_auxiliary_contradiction_classifier"
)

// Phase tags when a flag was introduced or is scheduled to retire, for
// operational visibility only; the registry does not act on these.
type Phase string

const (
	PhaseGA       Phase = "ga"
	PhaseBeta     Phase = "beta"
	PhaseExperimental Phase = "experimental"
)

// Definition is one flag's static metadata: default, description, phase.
type Definition struct {
	Name        Name
	Default     bool
	Description string
	Phase       Phase
}

func defaultDefinitions() []Definition {
	return []Definition{
		{EnableReconstructionGates, true, "run the four reconstruction sub-gates over every candidate output", PhaseGA},
		{EnableGroundingCheck, true, "run the grounding sub-gate (key-element overlap against retrieved memories)", PhaseGA},
		{EnableResponseTypeGates, true, "apply response-type-specific thresholds in the gate composition", PhaseGA},
		{EnableContradictionDetection, true, "run the rule-based contradiction detector against retrieved memories", PhaseGA},
		{EnableContradictionLifecycle, true, "advance ledger records through the FSM instead of recording OPEN-only", PhaseGA},
		{EnableDisclosurePolicy, true, "compute required disclosures and verify emitted output against them", PhaseGA},
		{EnableSelfQuestioning, true, "generate a clarifying question when gates reject and no caveat retry applies", PhaseGA},
		{EnableHumbleWrapper, false, "soften refusal/low-confidence responses with a hedging wrapper", PhaseBeta},
		{EnableEmotionIntensity, false, "scale caveat phrasing by an affect-intensity signal on the user turn", PhaseExperimental},
		{EnableCaveatInjection, true, "inject deterministic caveats into the pre-generation prompt context", PhaseGA},
		{EnableRetrievalFirstPrompt, true, "place retrieved memories ahead of instructions in the generation prompt", PhaseGA},
		{EnableParaphraseTolerance, true, "suppress contradictions that fall in the paraphrase drift window with high overlap", PhaseGA},
		{EnableAuxiliaryContradictionClassifier, false, "consult an injected contradiction.AuxiliaryScorer alongside the rule engine", PhaseExperimental},
	}
}

// Registry is a loaded, read-only set of flag values.
type Registry struct {
	values      map[Name]bool
	definitions map[Name]Definition
	auxScorer   contradiction.AuxiliaryScorer
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithAuxiliaryScorer injects the auxiliary classifier implementation the
// enable_auxiliary_contradiction_classifier flag requires to be enabled.
func WithAuxiliaryScorer(scorer contradiction.AuxiliaryScorer) Option {
	return func(r *Registry) { r.auxScorer = scorer }
}

// WithOverride forces a single flag's value, used by test harnesses and by
// configuration-document overrides layered on top of the defaults.
func WithOverride(name Name, value bool) Option {
	return func(r *Registry) { r.values[name] = value }
}

// New builds a registry from the default definitions plus any options,
// then validates the auxiliary-classifier constraint.
func New(opts ...Option) (*Registry, error) {
	defs := defaultDefinitions()
	r := &Registry{
		values:      make(map[Name]bool, len(defs)),
		definitions: make(map[Name]Definition, len(defs)),
	}
	for _, d := range defs {
		r.values[d.Name] = d.Default
		r.definitions[d.Name] = d
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// validate enforces that the auxiliary classifier can only be enabled when
// a scorer was actually injected.
func (r *Registry) validate() error {
	if r.values[EnableAuxiliaryContradictionClassifier] && r.auxScorer == nil {
		return fmt.Errorf("flags: %s is enabled but no contradiction.AuxiliaryScorer was injected", EnableAuxiliaryContradictionClassifier)
	}
	return nil
}

// Enabled reports a flag's current value, defaulting to false for any name
// outside the enumerated set rather than panicking.
func (r *Registry) Enabled(name Name) bool {
	return r.values[name]
}

// AuxiliaryScorer returns the injected scorer, or nil if none was provided.
func (r *Registry) AuxiliaryScorer() contradiction.AuxiliaryScorer {
	return r.auxScorer
}

// Definition returns a flag's static metadata and whether it is known.
func (r *Registry) Definition(name Name) (Definition, bool) {
	d, ok := r.definitions[name]
	return d, ok
}

// All returns every known flag's current value, for diagnostics endpoints.
func (r *Registry) All() map[Name]bool {
	out := make(map[Name]bool, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
