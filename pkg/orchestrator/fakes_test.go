package orchestrator

import (
	"context"
	"strings"
	"sync"
)

// fakeSTT returns a scripted sequence of results, one per call; calls
// past the end of the script return an empty result.
type fakeSTT struct {
	mu      sync.Mutex
	results []fakeSTTCall
	calls   int
}

type fakeSTTCall struct {
	result STTResult
	err    error
	delay  func(ctx context.Context) // optional: block until ctx is done or a signal fires
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, lang Language, isFinal bool) (STTResult, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i >= len(f.results) {
		return STTResult{}, nil
	}
	call := f.results[i]
	if call.delay != nil {
		call.delay(ctx)
	}
	if ctx.Err() != nil {
		return STTResult{}, ctx.Err()
	}
	return call.result, call.err
}

// fakeLLM emits the scripted tokens one at a time via onDelta, then
// returns the concatenation as the final text.
type fakeLLM struct {
	tokens []string
	err    error
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) GenerateStream(ctx context.Context, systemPrompt string, history []Message, userText string, onDelta func(TokenDelta) error) (string, error) {
	var sb strings.Builder
	for _, tok := range f.tokens {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		sb.WriteString(tok)
		if onDelta != nil {
			if err := onDelta(TokenDelta{Content: tok, Full: sb.String()}); err != nil {
				return sb.String(), err
			}
		}
	}
	if f.err != nil {
		return sb.String(), f.err
	}
	return sb.String(), nil
}

// fakeTTS records every synthesised string and streams back one chunk
// containing the text itself, so tests can assert on what was spoken.
type fakeTTS struct {
	mu          sync.Mutex
	synthesised []string
	aborted     bool
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	f.record(text)
	return []byte(text), nil
}

func (f *fakeTTS) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	f.record(text)
	if text == "" {
		return nil
	}
	return onChunk([]byte(text))
}

func (f *fakeTTS) Abort() error {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTTS) record(text string) {
	f.mu.Lock()
	f.synthesised = append(f.synthesised, text)
	f.mu.Unlock()
}

func (f *fakeTTS) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synthesised...)
}

// collectingLogger records Warn/Error calls for assertions that a
// failure path logged instead of panicking.
type collectingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *collectingLogger) Debug(msg string, args ...interface{}) {}
func (l *collectingLogger) Info(msg string, args ...interface{})  {}
func (l *collectingLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *collectingLogger) Error(msg string, args ...interface{}) {
	l.Warn(msg, args...)
}

func (l *collectingLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// eventSink collects emitted events and audio chunks in order, the way a
// real websocket connection's outbound frames would arrive.
type eventSink struct {
	mu     sync.Mutex
	events []Event
	audio  [][]byte
}

func (s *eventSink) sendEvent(e Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) sendAudio(b []byte) error {
	s.mu.Lock()
	s.audio = append(s.audio, append([]byte(nil), b...))
	s.mu.Unlock()
	return nil
}

func (s *eventSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *eventSink) typesInOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		t, _ := e["type"].(string)
		out[i] = t
	}
	return out
}
