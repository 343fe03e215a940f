package orchestrator

import (
	"encoding/json"
	"strings"
)

// Envelope is the LLM's structured reply contract.
type Envelope struct {
	SpokenResponse string          `json:"spoken_response"`
	Intent         string          `json:"intent"`
	ProductName    *string         `json:"product_name"`
	ProductID      *int            `json:"product_id"`
	Quantity       int             `json:"quantity"`
	Recommendation *Recommendation `json:"recommendation"`
}

type Recommendation struct {
	ProductID   int    `json:"product_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

// ParseEnvelope strips a fenced code block if present, locates the
// outermost { ... }, and parses it. If no valid JSON
// object is found, a default envelope of intent "info" carrying the raw
// text is returned along with ErrEnvelopeParseFailure so callers can log
// it as a warning without treating it as fatal.
func ParseEnvelope(raw string) (Envelope, error) {
	text := stripCodeFence(raw)

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		var env Envelope
		if err := json.Unmarshal([]byte(text[start:end+1]), &env); err == nil {
			if env.Quantity == 0 {
				env.Quantity = 1
			}
			return env, nil
		}
	}

	return Envelope{
		SpokenResponse: raw,
		Intent:         "info",
		Quantity:       1,
	}, ErrEnvelopeParseFailure
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ResolveRecommendation looks up a recommended product_id against the
// session's known products. Returns (product, true) on a match, or
// (Product{}, false); the caller suppresses the recommendation event in
// the latter case.
func ResolveRecommendation(rec *Recommendation, products []Product) (Product, bool) {
	if rec == nil {
		return Product{}, false
	}
	for _, p := range products {
		if p.ID == rec.ProductID {
			return p, true
		}
	}
	return Product{}, false
}
