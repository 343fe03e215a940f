package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// twoCallLLM blocks on ctx.Done() on its first call (simulating a
// speculative turn still in flight when OnAudioEnd decides to cancel it)
// and streams the given tokens normally on every subsequent call.
type twoCallLLM struct {
	calls  int32
	tokens []string
}

func (l *twoCallLLM) Name() string { return "two-call-llm" }

func (l *twoCallLLM) GenerateStream(ctx context.Context, systemPrompt string, history []Message, userText string, onDelta func(TokenDelta) error) (string, error) {
	if atomic.AddInt32(&l.calls, 1) == 1 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	var sb strings.Builder
	for _, tok := range l.tokens {
		sb.WriteString(tok)
		if onDelta != nil {
			if err := onDelta(TokenDelta{Content: tok, Full: sb.String()}); err != nil {
				return sb.String(), err
			}
		}
	}
	return sb.String(), nil
}

func TestControllerOnAudioFrameLaunchesPartialSTTOnceThresholdMet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialSTTMinChunks = 2
	cfg.PartialSTTMinInterval = 0

	session := NewSession("sess-1", "scope-1", "", nil, cfg)
	stt := &fakeSTT{results: []fakeSTTCall{{result: STTResult{Text: "hello there", Confidence: 0.9}}}}
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, stt, nil, nil, cfg, sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnAudioFrame([]byte{1, 2, 3})
	if session.PartialTranscript() != "" {
		t.Fatal("expected no partial STT launch below chunk threshold")
	}
	ctrl.OnAudioFrame([]byte{4, 5, 6})

	deadline := time.After(time.Second)
	for session.PartialTranscript() == "" {
		select {
		case <-deadline:
			t.Fatal("expected partial transcript to be set once chunk threshold was met")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := session.PartialTranscript(); got != "hello there" {
		t.Errorf("expected partial transcript %q, got %q", "hello there", got)
	}

	types := sink.typesInOrder()
	if len(types) == 0 || types[0] != "partial_transcript" {
		t.Fatalf("expected a partial_transcript event, got %v", types)
	}
}

func TestControllerOnAudioEndSpeculationHitSkipsSecondTurn(t *testing.T) {
	cfg := DefaultConfig()
	llm := &fakeLLM{tokens: []string{`{"spoken_response": "Sure, adding that.", "intent": "add"}`}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, cfg)

	session := newTestSession()
	session.SetPartialTranscript("order two large pizzas")

	stt := &fakeSTT{results: []fakeSTTCall{{result: STTResult{Text: ""}}}}
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, bridge, stt, tts, nil, cfg, sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnAudioEnd()

	// The adopted speculative stream owns the wire: no transcript event
	// may land mid-stream, and the turn's events must arrive in order.
	types := sink.typesInOrder()
	firstToken, aiComplete, ttsStart, ttsComplete := -1, -1, -1, -1
	for i, ty := range types {
		switch ty {
		case "transcript":
			t.Fatalf("expected no transcript event on a speculative hit, got %v", types)
		case "ai_token":
			if firstToken < 0 {
				firstToken = i
			}
		case "ai_complete":
			aiComplete = i
		case "tts_start":
			ttsStart = i
		case "tts_complete":
			ttsComplete = i
		}
	}
	if firstToken < 0 || aiComplete < firstToken || ttsStart < aiComplete || ttsComplete < ttsStart {
		t.Fatalf("unexpected event order: %v", types)
	}
	for i, ty := range types[:firstToken] {
		if ty != "status" {
			t.Fatalf("expected only status events before the first ai_token, got %q at %d in %v", ty, i, types)
		}
	}
	if session.State() != StateIdle {
		t.Errorf("expected session reset to IDLE after the turn, got %s", session.State())
	}
	if got := session.FullTranscript(); got != "order two large pizzas" {
		t.Errorf("expected the adopted transcript recorded, got %q", got)
	}
}

func TestControllerOnAudioEndSpeculationMissRunsFreshTurn(t *testing.T) {
	cfg := DefaultConfig()
	llm := &twoCallLLM{tokens: []string{
		`{"spoken_response": "Got it, one salad coming up.", "intent": "add"}`,
	}}
	tts := &fakeTTS{}
	bridge := NewBridge(llm, tts, nil, nil, nil, cfg)

	session := newTestSession()
	session.SetPartialTranscript("order two large pizzas")

	stt := &fakeSTT{results: []fakeSTTCall{
		{
			result: STTResult{Text: "completely different sentence about salads"},
			// Gives the speculative goroutine time to reach its blocking
			// GenerateStream call before this (the final, synchronous)
			// transcribe returns and the overlap check fires specCancel.
			delay: func(ctx context.Context) { time.Sleep(20 * time.Millisecond) },
		},
	}}
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, bridge, stt, tts, nil, cfg, sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnAudioEnd()

	if atomic.LoadInt32(&llm.calls) != 2 {
		t.Fatalf("expected the speculative turn (call 1, cancelled) and a fresh final turn (call 2), got %d calls", llm.calls)
	}
	spoken := tts.Texts()
	found := false
	for _, s := range spoken {
		if strings.Contains(s, "salad") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the final turn's reply to be synthesised, got %v", spoken)
	}
	if session.State() != StateIdle {
		t.Errorf("expected session reset to IDLE, got %s", session.State())
	}
}

func TestControllerOnAudioEndFinalSTTFailureWithNoSpeculationEmitsError(t *testing.T) {
	cfg := DefaultConfig()
	session := newTestSession() // no partial transcript set: not speculative
	stt := &fakeSTT{results: []fakeSTTCall{{result: STTResult{}, err: ErrProviderPermanent}}}
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, stt, nil, nil, cfg, sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnAudioEnd()

	types := sink.typesInOrder()
	if len(types) == 0 || types[len(types)-1] != "error" {
		t.Fatalf("expected a trailing error event, got %v", types)
	}
	if session.State() != StateIdle {
		t.Errorf("expected session reset to IDLE, got %s", session.State())
	}
}

func TestControllerOnInterruptAbortsTTSAndCancelsWork(t *testing.T) {
	cfg := DefaultConfig()
	tts := &fakeTTS{}
	session := newTestSession()
	session.setState(StateStreamingTTS)

	var partialCancelled, turnCancelled bool
	session.SetActivePartialSTT(func() { partialCancelled = true })
	session.SetActiveTurn(func() { turnCancelled = true })

	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, nil, tts, nil, cfg, sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnInterrupt()

	if !tts.aborted {
		t.Error("expected TTS Abort() to be called on interrupt")
	}
	if !partialCancelled || !turnCancelled {
		t.Errorf("expected both in-flight tasks cancelled, partial=%v turn=%v", partialCancelled, turnCancelled)
	}
	if session.State() != StateListening {
		t.Errorf("expected state LISTENING after interrupt, got %s", session.State())
	}

	types := sink.typesInOrder()
	if len(types) == 0 || types[len(types)-1] != "interrupt_ack" {
		t.Fatalf("expected a trailing interrupt_ack event, got %v", types)
	}
}

func TestControllerOnPingSendsPong(t *testing.T) {
	session := newTestSession()
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, nil, nil, nil, DefaultConfig(), sink.sendEvent, sink.sendAudio)
	defer ctrl.Close()

	ctrl.OnPing()

	types := sink.typesInOrder()
	if len(types) != 1 || types[0] != "pong" {
		t.Fatalf("expected a single pong event, got %v", types)
	}
}

func TestControllerCloseAwaitsBlockedPartialSTT(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialSTTMinChunks = 1
	cfg.PartialSTTMinInterval = 0

	session := NewSession("sess-1", "scope-1", "", nil, cfg)
	started := make(chan struct{})
	stt := &fakeSTT{results: []fakeSTTCall{{
		delay: func(ctx context.Context) { close(started); <-ctx.Done() },
	}}}
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, stt, nil, nil, cfg, sink.sendEvent, sink.sendAudio)

	ctrl.OnAudioFrame([]byte{1, 2})
	<-started

	done := make(chan struct{})
	go func() {
		ctrl.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after cancelling the blocked partial STT")
	}

	if types := sink.typesInOrder(); len(types) != 0 {
		t.Fatalf("expected no events from the cancelled task, got %v", types)
	}
}

func TestControllerCloseIsIdempotent(t *testing.T) {
	session := newTestSession()
	sink := &eventSink{}
	ctrl := NewController(context.Background(), session, nil, nil, nil, nil, DefaultConfig(), sink.sendEvent, sink.sendAudio)

	ctrl.Close()
	ctrl.Close() // must not panic

	select {
	case <-ctrl.ctx.Done():
	default:
		t.Error("expected the controller's context to be cancelled after Close")
	}
}
