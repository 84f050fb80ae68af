package contradiction

import "groundedmemory/domain/memory"

// AuxiliaryScorer is the seam left for a future ML-backed contradiction
// classifier. The rule-based detector in
// application/detection never calls one; flags.WithAuxiliaryScorer can
// place a scorer in the flag registry, but nothing in the pipeline calls
// Score, and no implementation ships in this module.
type AuxiliaryScorer interface {
	// Score returns an auxiliary contradiction likelihood in [0, 1] for two
	// candidate values on the same slot, given their vectors. A score does
	// not by itself open a record; callers still apply the fixed rule order.
	Score(oldValue, newValue string, oldVector, newVector memory.Vector) (float64, error)
}
