package orchestrator

import (
	"context"
	"testing"

	"github.com/freya-voice/voicecore/pkg/opener"
)

func newTestSession() *Session {
	cfg := DefaultConfig()
	products := []Product{{ID: 1, Name: "Margherita Pizza", Price: 12.5, Category: "Pizza"}}
	return NewSession("sess-1", "scope-1", "Pizza:\n- #1 Margherita Pizza ($12.50)\n", products, cfg)
}

func TestBridgeRunTurnHappyPath(t *testing.T) {
	llm := &fakeLLM{tokens: []string{
		`{"spoken_response": "Of course!`,
		` I'll add that to your cart.", "intent": "add",`,
		` "product_name": "Margherita Pizza", "product_id": 1, "quantity": 1, "recommendation": null}`,
	}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, DefaultConfig())
	session := newTestSession()
	sink := &eventSink{}

	err := bridge.RunTurn(context.Background(), session, "I'd like a pizza", sink.sendEvent, sink.sendAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := sink.typesInOrder()
	wantPrefix := []string{"status", "ai_token", "ai_token", "ai_token", "ai_complete", "tts_start"}
	for i, want := range wantPrefix {
		if i >= len(types) || types[i] != want {
			t.Fatalf("event order mismatch at %d: want %q, got %v", i, want, types)
		}
	}
	if types[len(types)-1] != "tts_complete" {
		t.Fatalf("expected tts_complete last, got %v", types)
	}

	spoken := tts.Texts()
	if len(spoken) != 2 {
		t.Fatalf("expected first-sentence + remainder synthesis calls, got %v", spoken)
	}
	if spoken[0] != "Of course!" {
		t.Errorf("expected first sentence 'Of course!', got %q", spoken[0])
	}

	if session.State() != StateIdle {
		t.Errorf("expected session reset to IDLE, got %s", session.State())
	}
	if got := session.HistoryMessages(); len(got) != 2 {
		t.Errorf("expected one {user,assistant} pair recorded, got %d messages", len(got))
	}
}

func TestBridgeRunTurnUsesOpenerCacheForFirstSentence(t *testing.T) {
	dir := t.TempDir()
	cache := opener.New(dir, map[string]string{"of_course": "Of course!"})
	if _, err := cache.Load(context.Background(), func(ctx context.Context, text string) ([]byte, error) {
		return []byte("cached:" + text), nil
	}, nil); err != nil {
		t.Fatalf("load opener cache: %v", err)
	}

	llm := &fakeLLM{tokens: []string{
		`{"spoken_response": "Of course! I'll add that.", "intent": "add", "quantity": 1}`,
	}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, cache, []string{"Of course!"}, nil, DefaultConfig())
	session := newTestSession()
	sink := &eventSink{}

	if err := bridge.RunTurn(context.Background(), session, "add a pizza", sink.sendEvent, sink.sendAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.audio) == 0 {
		t.Fatal("expected at least one audio chunk")
	}
	if string(sink.audio[0]) != "cached:Of course!" {
		t.Errorf("expected cached opener audio to be emitted first, got %q", sink.audio[0])
	}
	// The remainder after the cached opener must still be synthesised live.
	found := false
	for _, s := range tts.Texts() {
		if s == "I'll add that." {
			found = true
		}
	}
	if !found {
		t.Errorf("expected remainder to be synthesised, got %v", tts.Texts())
	}
}

func TestBridgeRunTurnEnvelopeParseFailureFallsBack(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"not json at all, just prose."}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, DefaultConfig())
	session := newTestSession()
	sink := &eventSink{}

	if err := bridge.RunTurn(context.Background(), session, "hello", sink.sendEvent, sink.sendAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var completeEvent Event
	for _, e := range sink.Events() {
		if e["type"] == "ai_complete" {
			completeEvent = e
		}
	}
	if completeEvent == nil {
		t.Fatal("expected an ai_complete event")
	}
	env, ok := completeEvent["data"].(Envelope)
	if !ok {
		t.Fatalf("expected Envelope payload, got %T", completeEvent["data"])
	}
	if env.Intent != "info" {
		t.Errorf("expected fallback intent 'info', got %q", env.Intent)
	}
}

func TestBridgeRunTurnCancelledBeforeStartReturnsImmediately(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"irrelevant"}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, DefaultConfig())
	session := newTestSession()
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bridge.RunTurn(ctx, session, "hello", sink.sendEvent, sink.sendAudio)
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestBridgeRunTurnEmitsRecommendationBetweenCompleteAndTTSStart(t *testing.T) {
	llm := &fakeLLM{tokens: []string{
		`{"spoken_response": "Here's something great.", "intent": "recommend", "quantity": 1,` +
			` "recommendation": {"product_id": 1, "product_name": "Margherita Pizza", "reason": "house favourite"}}`,
	}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, DefaultConfig())
	session := newTestSession()
	sink := &eventSink{}

	if err := bridge.RunTurn(context.Background(), session, "any ideas?", sink.sendEvent, sink.sendAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := sink.typesInOrder()
	aiComplete, recommendation, ttsStart := -1, -1, -1
	for i, ty := range types {
		switch ty {
		case "ai_complete":
			aiComplete = i
		case "recommendation":
			recommendation = i
		case "tts_start":
			ttsStart = i
		}
	}
	if recommendation < 0 {
		t.Fatalf("expected a recommendation event, got %v", types)
	}
	if !(aiComplete < recommendation && recommendation < ttsStart) {
		t.Fatalf("expected recommendation between ai_complete and tts_start, got %v", types)
	}

	var ev Event
	for _, e := range sink.Events() {
		if e["type"] == "recommendation" {
			ev = e
		}
	}
	product, ok := ev["product"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a product payload, got %+v", ev)
	}
	if product["name"] != "Margherita Pizza" || product["reason"] != "house favourite" {
		t.Errorf("unexpected recommendation payload: %+v", product)
	}
}

func TestBridgeRunTurnSuppressesUnresolvedRecommendation(t *testing.T) {
	llm := &fakeLLM{tokens: []string{
		`{"spoken_response": "Here's something great.", "intent": "recommend", "quantity": 1,` +
			` "recommendation": {"product_id": 999, "product_name": "Ghost Item", "reason": "trending"}}`,
	}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, DefaultConfig())
	session := newTestSession() // only product id 1 exists
	sink := &eventSink{}

	if err := bridge.RunTurn(context.Background(), session, "any ideas?", sink.sendEvent, sink.sendAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, e := range sink.Events() {
		if e["type"] == "recommendation" {
			t.Fatalf("expected recommendation event to be suppressed for unknown product id, got %+v", e)
		}
	}
}
