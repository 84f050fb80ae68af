package extraction

import (
	"strings"

	"github.com/araddon/dateparse"
)

// correctionMarkers flag an explicit user correction, classifying a
// contradiction as REVISION rather than CONFLICT.
var correctionMarkers = []string{
	"actually", "i meant", "not ", "sorry", "correction", "to clarify",
}

// temporalMarkers flag a dated or time-relative update, classifying a
// contradiction as TEMPORAL.
var temporalMarkers = []string{
	"now", "used to", "last week", "last month", "moved", "was promoted",
	"since", "as of", "anymore", "no longer",
}

// HasCorrectionMarker reports whether text contains an explicit correction
// phrase ("actually", "I meant", "not X but Y", "sorry").
func HasCorrectionMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range correctionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// HasTemporalMarker reports whether text contains a dated or time-relative
// phrase ("now", "used to", "last week", "moved", "was promoted"), or a
// substring dateparse can parse as an absolute date - a sentence naming a
// specific date is itself a temporal marker even without one of the fixed
// phrases.
func HasTemporalMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range temporalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return containsParseableDate(text)
}

// containsParseableDate scans whitespace-delimited runs of the text for a
// substring dateparse can interpret as a calendar date. It is deliberately
// conservative: single bare numbers are not attempted, since dateparse will
// happily misread a plain integer as a date.
func containsParseableDate(text string) bool {
	fields := strings.Fields(text)
	for i := 0; i < len(fields); i++ {
		for j := i + 1; j <= len(fields) && j <= i+4; j++ {
			candidate := strings.Join(fields[i:j], " ")
			if len(candidate) < 6 {
				continue
			}
			if _, err := dateparse.ParseAny(candidate); err == nil {
				return true
			}
		}
	}
	return false
}
