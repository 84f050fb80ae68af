package memory

// Source identifies where a memory's content originated. Trust ceilings are
// keyed off this value; the mapping is fixed, not configurable, because
// it is a safety invariant rather than a tuning knob.
type Source string

const (
	SourceUser     Source = "USER"
	SourceSystem   Source = "SYSTEM"
	SourceLLM      Source = "LLM_OUTPUT"
	SourceTool     Source = "TOOL"
	SourceFallback Source = "FALLBACK"
)

// Valid reports whether s is one of the closed set of recognized sources.
func (s Source) Valid() bool {
	switch s {
	case SourceUser, SourceSystem, SourceLLM, SourceTool, SourceFallback:
		return true
	}
	return false
}

// TrustCap returns the maximum trust a memory from this source may carry at
// insertion, and whether a cap applies at all. LLM_OUTPUT and FALLBACK are
// capped at 0.3 regardless of whatever trust value the caller proposed.
func (s Source) TrustCap() (cap float64, capped bool) {
	switch s {
	case SourceLLM, SourceFallback:
		return 0.3, true
	default:
		return 1.0, false
	}
}
