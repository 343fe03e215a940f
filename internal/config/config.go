// Package config loads the process-wide tunables from the environment,
// with a .env bootstrap for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// Config is the full set of process-wide settings cmd/server needs:
// orchestrator.Config's tunables plus provider selection, credentials, and
// transport settings that have no home inside the orchestrator package.
type Config struct {
	orchestrator.Config

	Port string

	STTProvider string
	LLMProvider string
	TTSProvider string

	GroqAPIKey       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	DeepgramAPIKey   string
	AssemblyAIAPIKey string
	LokutorAPIKey    string

	STTBoundedConcurrency int64

	ScopeServiceURL string

	OpenerPhrases map[string]string
}

// Load reads a .env file if present (ignored if absent) and then
// populates Config from the environment, falling back to
// orchestrator.DefaultConfig for every tunable.
func Load() Config {
	_ = godotenv.Load()

	base := orchestrator.DefaultConfig()
	base.Voice = orchestrator.Voice(envStr("VOICE_AGENT_VOICE", string(base.Voice)))
	base.Language = orchestrator.Language(envStr("VOICE_AGENT_LANGUAGE", string(base.Language)))
	base.KeepWarmInterval = envDuration("KEEP_WARM_INTERVAL", base.KeepWarmInterval)
	base.PartialSTTMinInterval = envDuration("PARTIAL_STT_MIN_INTERVAL", base.PartialSTTMinInterval)
	base.PartialSTTMinChunks = envInt("PARTIAL_STT_MIN_CHUNKS", base.PartialSTTMinChunks)
	base.SpeculationOverlapThreshold = envFloat("SPECULATION_OVERLAP_THRESHOLD", base.SpeculationOverlapThreshold)
	base.SpeculationMinWords = envInt("SPECULATION_MIN_WORDS", base.SpeculationMinWords)
	base.SilenceBeforeEarlyLLM = envDuration("SILENCE_BEFORE_EARLY_LLM", base.SilenceBeforeEarlyLLM)
	base.AudioBufferCap = envInt("AUDIO_BUFFER_CAP_BYTES", base.AudioBufferCap)
	base.OpenerCacheDir = envStr("OPENER_CACHE_DIR", base.OpenerCacheDir)
	base.STTMinAudioBytes = envInt("STT_MIN_AUDIO_BYTES", base.STTMinAudioBytes)
	base.ProviderMaxRetries = envInt("PROVIDER_MAX_RETRIES", base.ProviderMaxRetries)
	base.ProviderRetryBase = envDuration("PROVIDER_RETRY_BASE", base.ProviderRetryBase)

	return Config{
		Config: base,

		Port: envStr("PORT", "8080"),

		STTProvider: envStr("STT_PROVIDER", "groq"),
		LLMProvider: envStr("LLM_PROVIDER", "groq"),
		TTSProvider: envStr("TTS_PROVIDER", "lokutor"),

		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		LokutorAPIKey:    os.Getenv("LOKUTOR_API_KEY"),

		STTBoundedConcurrency: int64(envInt("STT_BOUNDED_CONCURRENCY", 4)),

		ScopeServiceURL: envStr("SCOPE_SERVICE_URL", ""),

		OpenerPhrases: DefaultOpenerPhrases(),
	}
}

// DefaultOpenerPhrases is the fixed opener-phrase set. It must match the
// phrases the LLM's system prompt instructs the model to use verbatim;
// otherwise cache hits will be near-zero.
func DefaultOpenerPhrases() map[string]string {
	return map[string]string{
		"of_course_add_cart": "Of course, I'll add that to your cart.",
		"great_choice":       "Great choice!",
		"let_me_check":       "Let me check that for you.",
		"sure_here":          "Sure, here's what I found.",
		"happy_to_help":      "I'd be happy to help with that.",
		"one_moment":         "One moment please.",
		"got_it":             "Got it.",
		"here_is_recommend":  "Here's something I think you'll enjoy.",
		"welcome_greeting":   "Welcome! What can I get started for you today?",
		"anything_else":      "Is there anything else I can get for you?",
	}
}

func envStr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept either a Go duration string ("600ms") or a bare millisecond
	// integer.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
