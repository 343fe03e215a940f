package stt

import "strings"

// estimateConfidence assigns a heuristic score when a provider's
// response carries no native confidence: a segmented response (ends in
// sentence-final punctuation) scores higher than bare plain text, and an
// empty transcript scores lowest. The providers here all return bare text
// with no per-word confidence, so this heuristic stands in for all of
// them.
func estimateConfidence(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0.5
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		return 0.85
	}
	return 0.75
}
