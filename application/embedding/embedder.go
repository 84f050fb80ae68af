// Package embedding provides the core's reference embedder: a
// deterministic, stateless, pure mapping from text to a fixed-dimension
// unit vector. Production deployments are expected to inject a real model
// through ports.Embedder; this implementation exists so the rest of the
// core is testable without a network dependency.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"groundedmemory/domain/memory"
)

// ModelID identifies this deterministic hashing embedder so memories
// embedded by it can be detected and re-embedded if a real model ever
// replaces it.
const ModelID = "hashing-v1"

// HashingEmbedder implements ports.Embedder with a deterministic bag-of-
// tokens hash projected into Dim dimensions and L2-normalized. Two
// embeddings of the same text are always bit-identical; semantically
// similar short phrases land nearer each other
// only to the extent their token sets overlap - good enough for rule-based
// drift thresholds exercised by the detector's tests, not a claim of
// semantic quality.
type HashingEmbedder struct{}

func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

// Embed implements ports.Embedder.
func (e *HashingEmbedder) Embed(_ context.Context, text string) (memory.Vector, string, error) {
	tokens := tokenize(text)
	raw := make([]float64, memory.Dim)

	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(memory.Dim))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		raw[idx] += sign
	}

	var sumSq float64
	for _, v := range raw {
		sumSq += v * v
	}
	if sumSq == 0 {
		// No tokens (empty/whitespace-only text): fall back to a fixed
		// unit vector along the first axis rather than dividing by zero.
		raw[0] = 1.0
		sumSq = 1.0
	}
	norm := math.Sqrt(sumSq)
	for i := range raw {
		raw[i] /= norm
	}

	v, err := memory.NewVector(raw)
	if err != nil {
		return nil, "", err
	}
	return v, ModelID, nil
}

// Drift is a convenience re-export of the domain distance measure.
func Drift(a, b memory.Vector) float64 {
	return memory.Drift(a, b)
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
