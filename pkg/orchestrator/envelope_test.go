package orchestrator

import (
	"errors"
	"testing"
)

func TestParseEnvelopeValidJSON(t *testing.T) {
	raw := `{"spoken_response": "Sure thing!", "intent": "add", "product_name": "Margherita Pizza", "product_id": 1, "quantity": 2, "recommendation": null}`
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.SpokenResponse != "Sure thing!" {
		t.Errorf("unexpected spoken response: %q", env.SpokenResponse)
	}
	if env.Intent != "add" {
		t.Errorf("unexpected intent: %q", env.Intent)
	}
	if env.ProductID == nil || *env.ProductID != 1 {
		t.Errorf("unexpected product id: %+v", env.ProductID)
	}
	if env.Quantity != 2 {
		t.Errorf("unexpected quantity: %d", env.Quantity)
	}
}

func TestParseEnvelopeDefaultsQuantityToOne(t *testing.T) {
	raw := `{"spoken_response": "Got it.", "intent": "add"}`
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Quantity != 1 {
		t.Errorf("expected default quantity 1, got %d", env.Quantity)
	}
}

func TestParseEnvelopeStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"spoken_response\": \"Here you go.\", \"intent\": \"info\"}\n```"
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.SpokenResponse != "Here you go." {
		t.Errorf("unexpected spoken response: %q", env.SpokenResponse)
	}
}

func TestParseEnvelopeIgnoresSurroundingProse(t *testing.T) {
	raw := "Sure, here's the reply: {\"spoken_response\": \"Done.\", \"intent\": \"info\"} hope that helps"
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.SpokenResponse != "Done." {
		t.Errorf("unexpected spoken response: %q", env.SpokenResponse)
	}
}

func TestParseEnvelopeFallsBackOnMalformedJSON(t *testing.T) {
	raw := "I'm not sure how to answer that."
	env, err := ParseEnvelope(raw)
	if !errors.Is(err, ErrEnvelopeParseFailure) {
		t.Fatalf("expected ErrEnvelopeParseFailure, got %v", err)
	}
	if env.Intent != "info" {
		t.Errorf("expected fallback intent 'info', got %q", env.Intent)
	}
	if env.SpokenResponse != raw {
		t.Errorf("expected fallback spoken response to carry the raw text, got %q", env.SpokenResponse)
	}
	if env.Quantity != 1 {
		t.Errorf("expected fallback quantity 1, got %d", env.Quantity)
	}
}

func TestParseEnvelopeFallsBackOnUnbalancedBraces(t *testing.T) {
	raw := `{"spoken_response": "Truncated mid-stream`
	env, err := ParseEnvelope(raw)
	if !errors.Is(err, ErrEnvelopeParseFailure) {
		t.Fatalf("expected ErrEnvelopeParseFailure, got %v", err)
	}
	if env.SpokenResponse != raw {
		t.Errorf("expected raw text preserved in fallback, got %q", env.SpokenResponse)
	}
}

func TestResolveRecommendationMatch(t *testing.T) {
	products := []Product{
		{ID: 1, Name: "Margherita Pizza"},
		{ID: 2, Name: "Caesar Salad"},
	}
	rec := &Recommendation{ProductID: 2, ProductName: "Caesar Salad", Reason: "popular"}

	p, ok := ResolveRecommendation(rec, products)
	if !ok {
		t.Fatal("expected a match")
	}
	if p.Name != "Caesar Salad" {
		t.Errorf("unexpected product resolved: %+v", p)
	}
}

func TestResolveRecommendationNoMatch(t *testing.T) {
	products := []Product{{ID: 1, Name: "Margherita Pizza"}}
	rec := &Recommendation{ProductID: 999, ProductName: "Ghost Item"}

	_, ok := ResolveRecommendation(rec, products)
	if ok {
		t.Fatal("expected no match for an unknown product id")
	}
}

func TestResolveRecommendationNilRecommendation(t *testing.T) {
	if _, ok := ResolveRecommendation(nil, nil); ok {
		t.Fatal("expected no match for a nil recommendation")
	}
}
