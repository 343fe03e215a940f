// Command server is the process entrypoint: it loads configuration, wires
// the inference clients, the opener cache and the keep-warm pinger, and
// serves the duplex voice endpoint over HTTP.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freya-voice/voicecore/internal/config"
	"github.com/freya-voice/voicecore/internal/scope"
	wshandler "github.com/freya-voice/voicecore/internal/ws"
	"github.com/freya-voice/voicecore/pkg/opener"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
	llmProvider "github.com/freya-voice/voicecore/pkg/providers/llm"
	sttProvider "github.com/freya-voice/voicecore/pkg/providers/stt"
	ttsProvider "github.com/freya-voice/voicecore/pkg/providers/tts"
	"github.com/freya-voice/voicecore/pkg/warmer"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	cfg := config.Load()
	logger := orchestrator.NewSlogLogger(slog.Default())

	stt := buildSTT(cfg)
	llm := buildLLM(cfg)
	tts := buildTTS(cfg)

	openerCache := opener.New(cfg.OpenerCacheDir, cfg.OpenerPhrases)
	loadOpenerCache(openerCache, tts, cfg)

	pinger := warmer.New(stt, tts, cfg.KeepWarmInterval, cfg.Voice, cfg.Language, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pinger.Start(ctx)
	defer pinger.Stop()

	orch := orchestrator.New(stt, llm, tts, openerCache, logger, cfg.Config)
	scopeClient := scope.NewClient(cfg.ScopeServiceURL)
	handler := wshandler.NewHandler(orch, scopeClient, cfg.OpenerPhrases, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		slog.Info("voicecore listening", "port", cfg.Port, "stt", stt.Name(), "llm", llm.Name(), "tts", tts.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
}

func buildSTT(cfg config.Config) orchestrator.STTProvider {
	var base orchestrator.STTProvider
	switch cfg.STTProvider {
	case "openai":
		base = sttProvider.NewOpenAISTT(cfg.OpenAIAPIKey, "", cfg.Config)
	case "deepgram":
		base = sttProvider.NewDeepgramSTT(cfg.DeepgramAPIKey, cfg.Config)
	case "assemblyai":
		base = sttProvider.NewAssemblyAISTT(cfg.AssemblyAIAPIKey, cfg.Config)
	case "groq":
		fallthrough
	default:
		base = sttProvider.NewGroqSTT(cfg.GroqAPIKey, "", cfg.Config)
	}
	return sttProvider.NewBounded(base, cfg.STTBoundedConcurrency)
}

func buildLLM(cfg config.Config) orchestrator.LLMProvider {
	switch cfg.LLMProvider {
	case "openai":
		return llmProvider.NewOpenAILLM(cfg.OpenAIAPIKey, "")
	case "anthropic":
		return llmProvider.NewAnthropicLLM(cfg.AnthropicAPIKey, "")
	case "google":
		return llmProvider.NewGoogleLLM(cfg.GoogleAPIKey, "")
	case "groq":
		fallthrough
	default:
		return llmProvider.NewGroqLLM(cfg.GroqAPIKey, "")
	}
}

func buildTTS(cfg config.Config) orchestrator.TTSProvider {
	return ttsProvider.NewLokutorTTS(cfg.LokutorAPIKey)
}

// loadOpenerCache synthesises (or loads from disk) every configured
// opener phrase before the server starts accepting connections, so the
// very first turn of the very first session can hit the cache.
func loadOpenerCache(cache *opener.Cache, tts orchestrator.TTSProvider, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	synth := func(ctx context.Context, text string) ([]byte, error) {
		return tts.Synthesize(ctx, text, cfg.Voice, cfg.Language)
	}

	count, err := cache.Load(ctx, synth, func(key string, cached bool, bytes int, err error) {
		if err != nil {
			slog.Warn("opener cache entry failed", "key", key, "error", err)
			return
		}
		slog.Info("opener cache entry ready", "key", key, "from_disk", cached, "bytes", bytes)
	})
	if err != nil {
		slog.Warn("opener cache load", "error", err)
		return
	}
	slog.Info("opener cache ready", "phrases", count)
}
