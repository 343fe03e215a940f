// Package merge composes an accumulating partial transcript with a newly
// returned partial, eliminating the suffix/prefix word overlap that
// consecutive partial transcriptions of the same utterance produce.
package merge

import "strings"

// Merge combines two transcript fragments:
//   - if either is empty, return the other;
//   - tokenise both on whitespace; for k from min(len(old), len(new), 5)
//     down to 1, if the last k tokens of old equal the first k tokens of
//     new, return old + new[k:];
//   - otherwise return old + " " + new.
func Merge(old, newText string) string {
	if old == "" {
		return newText
	}
	if newText == "" {
		return old
	}

	oldWords := strings.Fields(old)
	newWords := strings.Fields(newText)

	maxOverlap := len(oldWords)
	if len(newWords) < maxOverlap {
		maxOverlap = len(newWords)
	}
	if maxOverlap > 5 {
		maxOverlap = 5
	}

	for k := maxOverlap; k >= 1; k-- {
		if sameTail(oldWords, newWords, k) {
			if k == len(newWords) {
				return old
			}
			return old + " " + strings.Join(newWords[k:], " ")
		}
	}

	return old + " " + newText
}

func sameTail(oldWords, newWords []string, k int) bool {
	ot := oldWords[len(oldWords)-k:]
	nt := newWords[:k]
	for i := range ot {
		if !strings.EqualFold(ot[i], nt[i]) {
			return false
		}
	}
	return true
}

// Overlap computes the token-set ratio used to decide whether a
// speculative turn's input is close enough to the final transcript to be
// kept:
//
//	|tokens(a) ∩ tokens(b)| / max(|tokens(a)|, |tokens(b)|), case-insensitive.
func Overlap(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	if len(aTokens) == 0 && len(bTokens) == 0 {
		return 1.0
	}
	inter := 0
	for t := range aTokens {
		if bTokens[t] {
			inter++
		}
	}
	denom := len(aTokens)
	if len(bTokens) > denom {
		denom = len(bTokens)
	}
	if denom == 0 {
		return 0
	}
	return float64(inter) / float64(denom)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
