// Package detection implements the contradiction detector: a rule-based,
// trust-weighted, paraphrase-tolerant comparison between a new fact and
// the canonical prior fact for the same slot. Rules fire in a fixed order;
// there is no learned classifier in the decision path.
package detection

import (
	"time"

	"groundedmemory/application/extraction"
	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

// Reason names why the detector did or did not fire, for logging and
// testing.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDuplicateValue Reason = "duplicate_value"
	ReasonParaphrase     Reason = "paraphrase"
	ReasonLowTrust       Reason = "low_trust"
	ReasonHighDrift      Reason = "high_drift"
	ReasonConfidenceDrop Reason = "confidence_drop"
	ReasonFallbackDrift  Reason = "fallback_drift"
	ReasonNoPriorFact    Reason = "no_prior_fact"
)

// Candidate is one new-fact-vs-prior-memory comparison considered by the
// detector for a single slot.
type Candidate struct {
	Slot          facts.Slot
	NewFact       facts.ExtractedFact
	NewMemoryID   ids.MemoryID
	NewVector     memory.Vector
	NewSource     memory.Source
	NewTrust      float64
	NewConfidence float64
	NewText       string

	PriorMemoryID   ids.MemoryID
	PriorVector     memory.Vector
	PriorValue      string
	PriorText       string
	PriorTrust      float64
	PriorConfidence float64
}

// Outcome is the result of evaluating one Candidate.
type Outcome struct {
	Candidate Candidate
	Fired     bool
	Reason    Reason
	Drift     float64
	Record    *contradiction.Record // non-nil only when Fired
}

// Detector evaluates candidates against domain/config thresholds.
type Detector struct {
	cfg *config.DomainConfig
}

func New(cfg *config.DomainConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs the full rule chain across every candidate and
// returns one Outcome per candidate. It never panics: a missing vector is
// treated as maximum drift (domain/memory.Drift's own failure semantics),
// not as a crash.
func (d *Detector) Detect(threadID ids.ThreadID, candidates []Candidate, now time.Time) []Outcome {
	outcomes := make([]Outcome, 0, len(candidates))
	for _, c := range candidates {
		outcomes = append(outcomes, d.evaluate(threadID, c, now))
	}
	return outcomes
}

func (d *Detector) evaluate(threadID ids.ThreadID, c Candidate, now time.Time) Outcome {
	newValue := normalize(c.NewFact.Value)
	priorValue := normalize(c.PriorValue)

	if priorValue == "" {
		return Outcome{Candidate: c, Fired: false, Reason: ReasonNoPriorFact}
	}

	drift := memory.Drift(c.NewVector, c.PriorVector)

	if newValue == priorValue {
		confDelta := c.PriorConfidence - c.NewConfidence
		if abs(confDelta) > d.cfg.ThetaConfDelta {
			rec := d.open(threadID, c, drift, contradiction.TypeDuplicate, now)
			return Outcome{Candidate: c, Fired: true, Reason: ReasonDuplicateValue, Drift: drift, Record: rec}
		}
		return Outcome{Candidate: c, Fired: false, Reason: ReasonNone, Drift: drift}
	}

	// Paraphrase tolerance is the first rule checked. Overlap is measured
	// between the two full texts; the bare prior value stands in when the
	// prior memory's text was not carried along.
	if drift >= d.cfg.ParaphraseDriftLow && drift <= d.cfg.ParaphraseDriftHigh {
		priorText := c.PriorText
		if priorText == "" {
			priorText = priorValue
		}
		overlap := extraction.KeyElementOverlap(c.NewText, priorText)
		if overlap >= d.cfg.ParaphraseOverlap {
			return Outcome{Candidate: c, Fired: false, Reason: ReasonParaphrase, Drift: drift}
		}
	}

	// Low-trust filter: when the less trusted source is below the low-trust
	// ceiling and the two trusts differ by at least the delta gate, the change
	// is treated as noise, not a contradiction worth recording.
	minTrust := c.PriorTrust
	if c.NewTrust < minTrust {
		minTrust = c.NewTrust
	}
	trustDelta := abs(c.PriorTrust - c.NewTrust)
	if minTrust < d.cfg.LowTrustCeiling && trustDelta >= d.cfg.LowTrustDeltaGate {
		return Outcome{Candidate: c, Fired: false, Reason: ReasonLowTrust, Drift: drift}
	}

	// High drift.
	if drift > d.cfg.ThetaContra {
		ctype := classify(c.NewText)
		rec := d.open(threadID, c, drift, ctype, now)
		return Outcome{Candidate: c, Fired: true, Reason: ReasonHighDrift, Drift: drift, Record: rec}
	}

	// Confidence-drop rule: a moderate drift paired with a sharp confidence
	// collapse is still worth flagging even under theta_contra.
	confDrop := c.PriorConfidence - c.NewConfidence
	if confDrop > d.cfg.ThetaDrop && drift > d.cfg.ThetaMin {
		ctype := classify(c.NewText)
		rec := d.open(threadID, c, drift, ctype, now)
		return Outcome{Candidate: c, Fired: true, Reason: ReasonConfidenceDrop, Drift: drift, Record: rec}
	}

	// LLM/fallback drift: generated facts, never asserted by the user or a
	// trusted tool, are checked against their own threshold, ThetaFallback.
	// High drift above ThetaContra has already fired, so this rule only adds
	// detections when ThetaFallback is set below ThetaContra.
	if (c.NewSource == memory.SourceLLM || c.NewSource == memory.SourceFallback) && drift > d.cfg.ThetaFallback {
		ctype := classify(c.NewText)
		rec := d.open(threadID, c, drift, ctype, now)
		return Outcome{Candidate: c, Fired: true, Reason: ReasonFallbackDrift, Drift: drift, Record: rec}
	}

	return Outcome{Candidate: c, Fired: false, Reason: ReasonNone, Drift: drift}
}

func (d *Detector) open(threadID ids.ThreadID, c Candidate, drift float64, ctype contradiction.Type, now time.Time) *contradiction.Record {
	return contradiction.Open(
		threadID,
		c.Slot,
		c.PriorMemoryID, c.NewMemoryID,
		c.PriorValue, c.NewFact.Value,
		ctype,
		drift, c.PriorTrust, c.NewTrust, c.PriorConfidence, c.NewConfidence,
		now,
	)
}

// classify picks the contradiction type: an explicit
// correction phrase wins over a temporal one when both are present, since
// the user naming their own mistake is stronger evidence than a date
// mention.
func classify(newText string) contradiction.Type {
	if extraction.HasCorrectionMarker(newText) {
		return contradiction.TypeRevision
	}
	if extraction.HasTemporalMarker(newText) {
		return contradiction.TypeTemporal
	}
	return contradiction.TypeConflict
}

func normalize(s string) string {
	return s
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
