package orchestrator

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// State is the session's current stage within a turn.
type State string

const (
	StateIdle          State = "IDLE"
	StateListening     State = "LISTENING"
	StateProcessingSTT State = "PROCESSING_STT"
	StateGeneratingLLM State = "GENERATING_LLM"
	StateStreamingTTS  State = "STREAMING_TTS"
	StateInterrupted   State = "INTERRUPTED"
)

// historyPair is one {user, assistant} turn kept for LLM context.
type historyPair struct {
	User      string
	Assistant string
}

// Session is the per-connection state. All mutable fields are guarded by
// mu; Session is safe for concurrent use by the controller goroutine and
// any spawned STT/turn tasks.
type Session struct {
	ID      string
	ScopeID string

	MenuContext string
	Products    []Product

	mu                 sync.Mutex
	state              State
	audioBuf           *bytes.Buffer
	chunkCount         int
	lastPartialSTTTime time.Time
	lastChunkTime      time.Time
	startTime          time.Time

	partialTranscript string
	fullTranscript    string

	history []historyPair

	activePartialSTTCancel context.CancelFunc
	activeTurnCancel       context.CancelFunc

	voice    Voice
	language Language

	cfg Config
}

func NewSession(id, scopeID, menuContext string, products []Product, cfg Config) *Session {
	return &Session{
		ID:          id,
		ScopeID:     scopeID,
		MenuContext: menuContext,
		Products:    products,
		state:       StateIdle,
		audioBuf:    new(bytes.Buffer),
		startTime:   time.Now(),
		voice:       cfg.Voice,
		language:    cfg.Language,
		cfg:         cfg,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// AppendAudio buffers an inbound frame, bumping the chunk count and the
// last-chunk timestamp. The buffer is capped; oldest bytes are dropped on
// overflow.
func (s *Session) AppendAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuf.Write(chunk)
	if over := s.audioBuf.Len() - s.cfg.AudioBufferCap; over > 0 {
		b := s.audioBuf.Bytes()
		s.audioBuf = bytes.NewBuffer(append([]byte(nil), b[over:]...))
	}
	s.chunkCount++
	s.lastChunkTime = time.Now()
}

// ShouldRunPartialSTT reports whether a partial transcription is due:
// enough chunks buffered, the minimum interval elapsed, and no partial STT
// already in flight. On true it resets the chunk count and records the
// timestamp atomically with the check, so at most one partial STT can ever
// be in flight per session.
func (s *Session) ShouldRunPartialSTT() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePartialSTTCancel != nil {
		return false
	}
	if s.chunkCount < s.cfg.PartialSTTMinChunks {
		return false
	}
	if time.Since(s.lastPartialSTTTime) < s.cfg.PartialSTTMinInterval {
		return false
	}
	s.chunkCount = 0
	s.lastPartialSTTTime = time.Now()
	return true
}

// LastChunkTime reports when the most recent audio frame arrived; zero if
// none has.
func (s *Session) LastChunkTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChunkTime
}

// Age reports how long the session has been open.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// SnapshotAudio returns a copy of the buffered audio for processing.
func (s *Session) SnapshotAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audioBuf.Bytes()...)
}

// ClearAudio empties the buffer, optionally retaining a trailing overlap
// window for context continuity across turns.
func (s *Session) ClearAudio(retainTrailing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if retainTrailing <= 0 || s.audioBuf.Len() <= retainTrailing {
		s.audioBuf.Reset()
		s.chunkCount = 0
		return
	}
	tail := append([]byte(nil), s.audioBuf.Bytes()[s.audioBuf.Len()-retainTrailing:]...)
	s.audioBuf = bytes.NewBuffer(tail)
	s.chunkCount = 0
}

func (s *Session) SetPartialTranscript(t string) {
	s.mu.Lock()
	s.partialTranscript = t
	s.mu.Unlock()
}

func (s *Session) PartialTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partialTranscript
}

func (s *Session) SetFullTranscript(t string) {
	s.mu.Lock()
	s.fullTranscript = t
	s.mu.Unlock()
}

func (s *Session) FullTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullTranscript
}

// SetActivePartialSTT records (or clears, with nil) the cancellation handle
// for the in-flight partial STT task.
func (s *Session) SetActivePartialSTT(cancel context.CancelFunc) {
	s.mu.Lock()
	s.activePartialSTTCancel = cancel
	s.mu.Unlock()
}

// CancelPartialSTT cancels and clears any in-flight partial STT.
func (s *Session) CancelPartialSTT() {
	s.mu.Lock()
	cancel := s.activePartialSTTCancel
	s.activePartialSTTCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) SetActiveTurn(cancel context.CancelFunc) {
	s.mu.Lock()
	s.activeTurnCancel = cancel
	s.mu.Unlock()
}

// CancelActiveTurn cancels and clears any in-flight turn (speculative or
// final LLM+TTS pair).
func (s *Session) CancelActiveTurn() {
	s.mu.Lock()
	cancel := s.activeTurnCancel
	s.activeTurnCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AddHistory appends a {user, assistant} pair, trimmed to MaxHistoryPairs.
func (s *Session) AddHistory(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, historyPair{User: user, Assistant: assistant})
	if max := s.cfg.MaxHistoryPairs; max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

// HistoryMessages renders the bounded history as LLM-ready messages.
func (s *Session) HistoryMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]Message, 0, len(s.history)*2)
	for _, p := range s.history {
		msgs = append(msgs, Message{Role: "user", Content: p.User})
		msgs = append(msgs, Message{Role: "assistant", Content: p.Assistant})
	}
	return msgs
}

// Reset returns the session to IDLE and clears per-turn transient state.
func (s *Session) Reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.partialTranscript = ""
	s.mu.Unlock()
}

func (s *Session) CurrentVoice() Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *Session) CurrentLanguage() Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Close cancels all in-flight work for the session and clears its
// conversation history; it does not wait for tasks to observe
// cancellation. Controller.Close owns that join via its WaitGroup of
// spawned goroutines.
func (s *Session) Close() {
	s.CancelPartialSTT()
	s.CancelActiveTurn()
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}
