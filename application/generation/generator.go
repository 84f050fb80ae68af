// Package generation provides the core's reference generator: a
// deterministic, template-based stand-in for an external LLM. Production
// deployments inject a real model through ports.Generator; this
// implementation exists so the pipeline is exercisable end to end without
// a network dependency, mirroring application/embedding's reference
// embedder.
package generation

import (
	"context"
	"strings"

	"groundedmemory/application/ports"
)

// TemplateGenerator composes a response out of retrieved context and the
// constraints the Disclosure Enforcer's pre-injection demanded, rather than
// calling out to a model. It never fails: Generate's error return exists
// only to satisfy ports.Generator for implementations that do call a
// network model.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate implements ports.Generator. The prompt itself is echoed back
// verbatim as the substantive answer (it already carries the retrieval-
// first context and instructions assembled by the orchestrator), with any
// required caveats appended afterward so disclosure verification always
// finds them present.
func (g *TemplateGenerator) Generate(_ context.Context, prompt string, constraints ports.GenerationConstraints) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))

	for _, caveat := range constraints.RequiredCaveats {
		b.WriteString(" ")
		b.WriteString(caveat)
	}

	out := b.String()
	if constraints.MaxTokens > 0 {
		out = truncateWords(out, constraints.MaxTokens)
	}
	return out, nil
}

// truncateWords caps out at maxWords whitespace-separated tokens, treating
// GenerationConstraints.MaxTokens as a word budget since this generator has
// no real tokenizer.
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}
