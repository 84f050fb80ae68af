package extraction

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var englishStopwords = stopwords.MustGet("en")

// KeyElements extracts the "key elements" of a sentence for the detector's
// paraphrase-tolerance rule: numeric tokens plus proper-noun-shaped
// tokens (capitalized, not sentence-initial), with English stopwords
// filtered out.
func KeyElements(text string) map[string]bool {
	out := make(map[string]bool)
	words := splitWords(text)
	for i, w := range words {
		lower := strings.ToLower(w)
		if isNumeric(w) {
			out[lower] = true
			continue
		}
		if i == 0 {
			// Sentence-initial capitalization is not evidence of a proper
			// noun.
			continue
		}
		if isCapitalized(w) && !englishStopwords.Contains(lower) {
			out[lower] = true
		}
	}
	return out
}

// KeyElementOverlap returns the fraction of the smaller key-element set
// that is also present in the other, the ratio the paraphrase-tolerance
// rule thresholds against.
func KeyElementOverlap(a, b string) float64 {
	setA := KeyElements(a)
	setB := KeyElements(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	small, large := setA, setB
	if len(large) < len(small) {
		small, large = large, small
	}
	var shared int
	for k := range small {
		if large[k] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(w) > 0
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}
