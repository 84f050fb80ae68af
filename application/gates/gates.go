// Package gates implements the reconstruction gates: four independent
// sub-gates over a candidate output (intent, memory, grounding, response
// type), each with its own thresholds, composed into one outcome.
package gates

import (
	"strings"

	"groundedmemory/application/extraction"
	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
)

// Intent classifies what the user's turn was trying to do.
type Intent string

const (
	IntentQuestion  Intent = "question"
	IntentAssertion Intent = "assertion"
	IntentCommand   Intent = "command"
)

// ResponseType classifies the candidate output's shape.
type ResponseType string

const (
	ResponseFactual      ResponseType = "FACTUAL"
	ResponseExplanatory  ResponseType = "EXPLANATORY"
	ResponseRefusal      ResponseType = "REFUSAL"
	ResponseClarification ResponseType = "CLARIFICATION"
	ResponseGreeting     ResponseType = "GREETING"
)

// Outcome is the composed verdict over all four sub-gates.
type Outcome string

const (
	OutcomePassGrounded    Outcome = "PASS_GROUNDED"
	OutcomeRejectCorrect   Outcome = "REJECT_CORRECT"
	OutcomeRejectIncorrect Outcome = "REJECT_INCORRECT"
	OutcomePassUngrounded  Outcome = "PASS_UNGROUNDED"
	OutcomeRejectNoMemory  Outcome = "REJECT_NO_MEMORY"
)

// SubGateResult is one sub-gate's verdict.
type SubGateResult struct {
	Name  string
	Score float64
	Pass  bool
}

// GateOutcome is the full result of evaluating a candidate output.
type GateOutcome struct {
	Outcome      Outcome
	ResponseType ResponseType
	SubGates     []SubGateResult
}

func (o GateOutcome) Passed() bool {
	return o.Outcome == OutcomePassGrounded || o.Outcome == OutcomePassUngrounded
}

// Input bundles everything the gate needs to evaluate one candidate:
// the output itself, retrieved memories, new facts, and contradictions.
type Input struct {
	UserText          string
	UserIntent        Intent
	CandidateOutput   string
	RetrievedMemories []ports.ScoredMemory
	NewFacts          map[facts.Slot][]facts.ExtractedFact
	Contradictions    []*contradiction.Record
}

// Gate composes the four sub-gates behind one entry point.
type Gate struct {
	cfg *config.DomainConfig
}

func New(cfg *config.DomainConfig) *Gate {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Gate{cfg: cfg}
}

// Evaluate runs all four sub-gates and classifies the result.
func (g *Gate) Evaluate(in Input) GateOutcome {
	if len(in.RetrievedMemories) == 0 {
		// Empty retrieval is a neutral rejection: with nothing to ground
		// against, any fact the candidate asserts is unsupported by
		// definition.
		return GateOutcome{Outcome: OutcomeRejectNoMemory, ResponseType: g.classifyResponseType(in)}
	}

	respType := g.classifyResponseType(in)

	intentResult := g.intentGate(in)
	memoryResult := g.memoryGate(in)
	groundingResult := g.groundingGate(in, respType)
	responseTypeResult := g.responseTypeGate(in, respType, intentResult, memoryResult, groundingResult)

	subgates := []SubGateResult{intentResult, memoryResult, groundingResult, responseTypeResult}

	allPass := true
	for _, sg := range subgates {
		if !sg.Pass {
			allPass = false
			break
		}
	}

	hasSupport := memoryResult.Score > 0 || groundingResult.Score >= g.cfg.ThetaGround

	var outcome Outcome
	switch {
	case allPass && hasSupport:
		outcome = OutcomePassGrounded
	case allPass && !hasSupport:
		outcome = OutcomePassUngrounded
	case !allPass && !hasSupport:
		outcome = OutcomeRejectCorrect
	default:
		outcome = OutcomeRejectIncorrect
	}

	return GateOutcome{Outcome: outcome, ResponseType: respType, SubGates: subgates}
}

// intentGate checks that the candidate's shape matches the inferred
// user intent: a question wants an answer, not a
// self-introduction; a command wants acknowledgment or a result, not a
// hedge.
func (g *Gate) intentGate(in Input) SubGateResult {
	candidate := strings.ToLower(in.CandidateOutput)
	score := 1.0
	switch in.UserIntent {
	case IntentQuestion:
		if looksLikeGreeting(candidate) || looksLikeSelfIntroduction(candidate) {
			score = 0.0
		}
	case IntentCommand:
		if looksLikeGreeting(candidate) {
			score = 0.2
		}
	}
	return SubGateResult{Name: "intent", Score: score, Pass: score >= 0.5}
}

// memoryGate checks that facts asserted by the candidate are present (by
// slot/value) in retrieved memories.
func (g *Gate) memoryGate(in Input) SubGateResult {
	if len(in.NewFacts) == 0 {
		// Nothing factual asserted; the gate has nothing to check, so it
		// neither helps nor hurts groundedness.
		return SubGateResult{Name: "memory", Score: 0, Pass: true}
	}

	var hits, total int
	for _, matches := range in.NewFacts {
		for _, f := range matches {
			total++
			// A fact only counts as supported when its normalized value
			// appears in a retrieved memory; the candidate's own text is
			// not evidence for itself.
			if memoryContainsValue(in.RetrievedMemories, strings.ToLower(f.Value)) {
				hits++
			}
		}
	}
	if total == 0 {
		return SubGateResult{Name: "memory", Score: 0, Pass: true}
	}
	score := float64(hits) / float64(total)
	return SubGateResult{Name: "memory", Score: score, Pass: score >= 1.0}
}

func memoryContainsValue(retrieved []ports.ScoredMemory, value string) bool {
	for _, sm := range retrieved {
		if strings.Contains(strings.ToLower(sm.Memory.Text()), value) {
			return true
		}
	}
	return false
}

// groundingGate anchors non-factual responses to retrieved memories via
// key-element overlap, reusing the extractor's paraphrase-overlap
// machinery.
func (g *Gate) groundingGate(in Input, respType ResponseType) SubGateResult {
	if respType == ResponseGreeting {
		// Greetings bypass grounding entirely.
		return SubGateResult{Name: "grounding", Score: 1.0, Pass: true}
	}
	if len(in.RetrievedMemories) == 0 {
		return SubGateResult{Name: "grounding", Score: 0, Pass: false}
	}

	best := 0.0
	for _, sm := range in.RetrievedMemories {
		overlap := extraction.KeyElementOverlap(in.CandidateOutput, sm.Memory.Text())
		if overlap > best {
			best = overlap
		}
	}
	// Factual answers are checked by the memory gate; their overlap score is
	// still reported but does not decide this gate.
	return SubGateResult{Name: "grounding", Score: best, Pass: respType == ResponseFactual || best >= g.cfg.ThetaGround}
}

// responseTypeGate classifies the candidate and applies type-specific
// thresholds: FACTUAL is strictest (requires the memory gate to pass
// outright), GREETING bypasses grounding.
func (g *Gate) responseTypeGate(in Input, respType ResponseType, intent, memory, grounding SubGateResult) SubGateResult {
	switch respType {
	case ResponseGreeting:
		return SubGateResult{Name: "response_type", Score: 1.0, Pass: true}
	case ResponseFactual:
		return SubGateResult{Name: "response_type", Score: memory.Score, Pass: memory.Pass}
	case ResponseRefusal, ResponseClarification:
		return SubGateResult{Name: "response_type", Score: 1.0, Pass: true}
	default: // EXPLANATORY
		return SubGateResult{Name: "response_type", Score: grounding.Score, Pass: grounding.Pass}
	}
}

func (g *Gate) classifyResponseType(in Input) ResponseType {
	candidate := strings.ToLower(strings.TrimSpace(in.CandidateOutput))
	switch {
	case candidate == "":
		return ResponseClarification
	case looksLikeGreeting(candidate):
		return ResponseGreeting
	case strings.HasSuffix(candidate, "?"):
		return ResponseClarification
	case strings.Contains(candidate, "i can't") || strings.Contains(candidate, "i cannot") || strings.Contains(candidate, "i'm not able to"):
		return ResponseRefusal
	case len(in.NewFacts) > 0:
		return ResponseFactual
	default:
		return ResponseExplanatory
	}
}

func looksLikeGreeting(s string) bool {
	for _, g := range []string{"hello", "hi there", "hey", "good morning", "good afternoon"} {
		if strings.Contains(s, g) {
			return true
		}
	}
	return false
}

func looksLikeSelfIntroduction(s string) bool {
	for _, p := range []string{"i am an ai", "i'm an ai", "as a language model", "i am a model"} {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
