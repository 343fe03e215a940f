// Package metrics declares the prometheus collectors the voice core
// exposes: session counts, turn and first-audio latency, speculation
// outcomes, provider errors and keep-warm results.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicecore_sessions_active",
		Help: "Currently connected voice sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecore_sessions_total",
		Help: "Total voice sessions opened",
	})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicecore_turn_duration_seconds",
		Help:    "Time from turn start to tts_complete, by outcome",
		Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 8},
	}, []string{"outcome"})

	FirstAudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecore_first_audio_latency_seconds",
		Help:    "Time from audio_end to the first TTS audio chunk on the wire",
		Buckets: []float64{0.2, 0.4, 0.6, 0.8, 1, 1.5, 2, 3},
	})

	SpeculationOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecore_speculation_outcome_total",
		Help: "Speculative turns by outcome: hit (adopted) or miss (cancelled)",
	}, []string{"outcome"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecore_provider_errors_total",
		Help: "Provider errors by provider and kind (retryable, permanent)",
	}, []string{"provider", "kind"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicecore_provider_latency_seconds",
		Help:    "Per-provider call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"provider", "op"})

	OpenerCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecore_opener_cache_hits_total",
		Help: "Opener-phrase cache hits",
	})

	OpenerCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecore_opener_cache_misses_total",
		Help: "Opener-phrase cache lookups with no matching prefix",
	})

	EnvelopeParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecore_envelope_parse_failures_total",
		Help: "LLM responses that fell back to the default envelope",
	})

	RecommendationsUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecore_recommendations_unresolved_total",
		Help: "Recommendation events suppressed for an unknown product id",
	})

	KeepWarmPings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecore_keep_warm_pings_total",
		Help: "Keep-warm pings by provider and result",
	}, []string{"provider", "result"})
)
