package orchestrator

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// STTResult is the outcome of a single Transcribe call.
type STTResult struct {
	Text       string
	Confidence float64
	Skipped    bool
}

// STTProvider transcribes a complete or partial utterance.
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, lang Language, isFinal bool) (STTResult, error)
	Name() string
}

// TokenDelta is one increment of a GenerateStream call.
type TokenDelta struct {
	Content string
	Done    bool
	Full    string // accumulated text, set on every delta and on Done
}

// LLMProvider generates a chat completion, streamed token-by-token.
type LLMProvider interface {
	// GenerateStream streams token deltas to onDelta until the model finishes
	// or ctx is cancelled. Returns the final accumulated text.
	GenerateStream(ctx context.Context, systemPrompt string, history []Message, userText string, onDelta func(TokenDelta) error) (string, error)
	Name() string
}

// TTSProvider synthesises speech, streamed in raw audio chunks.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	// Abort cancels any synthesis in flight on the provider's own connection,
	// independent of ctx cancellation on the caller's side. On barge-in the
	// provider-level stream must also be told to stop.
	Abort() error
	Name() string
}

type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
	LanguageTr Language = "tr"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds the process-wide tunables.
type Config struct {
	Voice    Voice
	Language Language

	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// MaxHistoryPairs bounds the {user, assistant} ring kept per session.
	MaxHistoryPairs int

	// KeepWarmInterval is how often the pinger warms STT/TTS (default 30s).
	KeepWarmInterval time.Duration

	// PartialSTTMinInterval is the minimum spacing between partial-STT
	// launches (default 600ms).
	PartialSTTMinInterval time.Duration

	// PartialSTTMinChunks is the minimum buffered audio frames before a
	// partial STT is launched (default 2).
	PartialSTTMinChunks int

	// SpeculationOverlapThreshold gates whether a speculative turn is kept
	// after the final transcript arrives (default 0.7).
	SpeculationOverlapThreshold float64

	// SpeculationMinWords is the minimum word count in the current partial
	// transcript required to launch a speculative turn.
	SpeculationMinWords int

	// SilenceBeforeEarlyLLM is the grace period held before treating a
	// speech gap as end-of-utterance (default 300ms).
	SilenceBeforeEarlyLLM time.Duration

	// AudioBufferCap bounds the per-session inbound audio buffer (~1 MiB,
	// oldest bytes dropped on overflow).
	AudioBufferCap int

	// OpenerCacheDir is where pre-synthesised opener audio is stored.
	OpenerCacheDir string

	// STTMinAudioBytes below which Transcribe short-circuits with Skipped=true.
	STTMinAudioBytes int

	// ProviderMaxRetries / ProviderRetryBase govern STT retry/backoff.
	ProviderMaxRetries int
	ProviderRetryBase  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Voice:                       VoiceF1,
		Language:                    LanguageEn,
		STTTimeout:                  30 * time.Second,
		LLMTimeout:                  30 * time.Second,
		TTSTimeout:                  30 * time.Second,
		MaxHistoryPairs:             4,
		KeepWarmInterval:            30 * time.Second,
		PartialSTTMinInterval:       600 * time.Millisecond,
		PartialSTTMinChunks:         2,
		SpeculationOverlapThreshold: 0.7,
		SpeculationMinWords:         3,
		SilenceBeforeEarlyLLM:       300 * time.Millisecond,
		AudioBufferCap:              1 << 20,
		OpenerCacheDir:              "./audio_cache",
		STTMinAudioBytes:            500,
		ProviderMaxRetries:          3,
		ProviderRetryBase:           1500 * time.Millisecond,
	}
}

// Product is a menu entry kept in session state for recommendation
// resolution.
type Product struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url,omitempty"`
	Allergens   []string `json:"allergens"`
}
