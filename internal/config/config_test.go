package config

import (
	"testing"
	"time"
)

func TestEnvStrFallsBackWhenUnset(t *testing.T) {
	if got := envStr("VOICECORE_TEST_UNSET_STR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestEnvStrReadsSetValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_STR", "custom")
	if got := envStr("VOICECORE_TEST_STR", "fallback"); got != "custom" {
		t.Errorf("expected custom, got %q", got)
	}
}

func TestEnvIntFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_INT", "not-a-number")
	if got := envInt("VOICECORE_TEST_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestEnvIntParsesSetValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_INT", "42")
	if got := envInt("VOICECORE_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestEnvFloatParsesSetValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_FLOAT", "0.85")
	if got := envFloat("VOICECORE_TEST_FLOAT", 0.7); got != 0.85 {
		t.Errorf("expected 0.85, got %v", got)
	}
}

func TestEnvFloatFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_FLOAT", "nope")
	if got := envFloat("VOICECORE_TEST_FLOAT", 0.7); got != 0.7 {
		t.Errorf("expected fallback 0.7, got %v", got)
	}
}

func TestEnvDurationAcceptsGoDurationString(t *testing.T) {
	t.Setenv("VOICECORE_TEST_DURATION", "250ms")
	if got := envDuration("VOICECORE_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
}

func TestEnvDurationAcceptsBareMillisecondInteger(t *testing.T) {
	t.Setenv("VOICECORE_TEST_DURATION", "600")
	if got := envDuration("VOICECORE_TEST_DURATION", time.Second); got != 600*time.Millisecond {
		t.Errorf("expected 600ms, got %v", got)
	}
}

func TestEnvDurationFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("VOICECORE_TEST_DURATION", "not-a-duration")
	if got := envDuration("VOICECORE_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("expected fallback 1s, got %v", got)
	}
}

func TestDefaultOpenerPhrasesHasTenEntries(t *testing.T) {
	phrases := DefaultOpenerPhrases()
	if len(phrases) != 10 {
		t.Fatalf("expected 10 opener phrases, got %d", len(phrases))
	}
	for key, text := range phrases {
		if key == "" || text == "" {
			t.Errorf("expected non-empty key/text pair, got %q -> %q", key, text)
		}
	}
}

func TestLoadAppliesEnvironmentOverridesOnTopOfDefaults(t *testing.T) {
	t.Setenv("VOICE_AGENT_VOICE", "M2")
	t.Setenv("SPECULATION_MIN_WORDS", "5")
	t.Setenv("SPECULATION_OVERLAP_THRESHOLD", "0.9")
	t.Setenv("STT_PROVIDER", "deepgram")
	t.Setenv("GROQ_API_KEY", "test-groq-key")
	t.Setenv("STT_BOUNDED_CONCURRENCY", "8")

	cfg := Load()

	if cfg.Voice != "M2" {
		t.Errorf("expected overridden voice M2, got %s", cfg.Voice)
	}
	if cfg.SpeculationMinWords != 5 {
		t.Errorf("expected overridden speculation min words 5, got %d", cfg.SpeculationMinWords)
	}
	if cfg.SpeculationOverlapThreshold != 0.9 {
		t.Errorf("expected overridden overlap threshold 0.9, got %v", cfg.SpeculationOverlapThreshold)
	}
	if cfg.STTProvider != "deepgram" {
		t.Errorf("expected overridden STT provider, got %s", cfg.STTProvider)
	}
	if cfg.GroqAPIKey != "test-groq-key" {
		t.Errorf("expected Groq API key to be read from env, got %q", cfg.GroqAPIKey)
	}
	if cfg.STTBoundedConcurrency != 8 {
		t.Errorf("expected overridden bounded concurrency 8, got %d", cfg.STTBoundedConcurrency)
	}
	if len(cfg.OpenerPhrases) != 10 {
		t.Errorf("expected default opener phrases to be populated, got %d", len(cfg.OpenerPhrases))
	}
}

func TestLoadDefaultsWhenNothingSet(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.TTSProvider != "lokutor" {
		t.Errorf("expected default TTS provider lokutor, got %s", cfg.TTSProvider)
	}
}
