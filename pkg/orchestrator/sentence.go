package orchestrator

import "regexp"

// spokenResponsePattern matches the opening of the spoken_response JSON
// string value and captures everything up to (and including) the first
// sentence-ending punctuation inside it. It deliberately does not attempt
// to parse JSON in general; the scan is reliable because the system prompt
// instructs the model to emit spoken_response as the first key.
var spokenResponsePattern = regexp.MustCompile(`"spoken_response"\s*:\s*"([^"]*?[.!?])`)

// firstSentence scans the accumulated LLM text for the first complete
// sentence inside the spoken_response string value. Returns the matched
// sentence and true once found; callers stop calling this once it has
// returned true for a given turn.
func firstSentence(accumulated string) (string, bool) {
	m := spokenResponsePattern.FindStringSubmatch(accumulated)
	if m == nil {
		return "", false
	}
	return m[1], true
}
