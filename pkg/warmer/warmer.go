// Package warmer implements the keep-warm pinger: a process-wide periodic
// task that calls the STT and TTS providers with minimal payloads to
// prevent provider-side container cold starts. Ping failures are logged
// and swallowed; the goal is socket warmth, not correctness.
package warmer

import (
	"context"
	"sync"
	"time"

	"github.com/freya-voice/voicecore/internal/metrics"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// pingAudio is a minimal silent payload, large enough to clear the STT
// client's minimum-size short-circuit, used to keep the connection warm
// without transcribing anything meaningful.
var pingAudio = make([]byte, 1024)

const pingText = "."

// Pinger periodically calls Transcribe and StreamSynthesize with minimal
// payloads.
type Pinger struct {
	stt      orchestrator.STTProvider
	tts      orchestrator.TTSProvider
	interval time.Duration
	logger   orchestrator.Logger
	voice    orchestrator.Voice
	language orchestrator.Language

	mu      sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
	started bool
}

func New(stt orchestrator.STTProvider, tts orchestrator.TTSProvider, interval time.Duration, voice orchestrator.Voice, language orchestrator.Language, logger orchestrator.Logger) *Pinger {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Pinger{
		stt:      stt,
		tts:      tts,
		interval: interval,
		logger:   logger,
		voice:    voice,
		language: language,
	}
}

// Start launches the periodic ping loop. It is idempotent; calling Start
// twice without an intervening Stop is a no-op.
func (p *Pinger) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	pingCtx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	p.done = make(chan struct{})
	p.started = true

	go p.loop(pingCtx)
}

// Stop cancels the ping loop and waits for it to exit.
func (p *Pinger) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.stop
	done := p.done
	p.started = false
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Pinger) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pingOnce(ctx)
		}
	}
}

func (p *Pinger) pingOnce(ctx context.Context) {
	if p.stt != nil {
		if _, err := p.stt.Transcribe(ctx, pingAudio, p.language, true); err != nil {
			metrics.KeepWarmPings.WithLabelValues(p.stt.Name(), "error").Inc()
			p.logger.Warn("keep-warm STT ping failed", "provider", p.stt.Name(), "error", err)
		} else {
			metrics.KeepWarmPings.WithLabelValues(p.stt.Name(), "ok").Inc()
		}
	}
	if p.tts != nil {
		if err := p.tts.StreamSynthesize(ctx, pingText, p.voice, p.language, func([]byte) error { return nil }); err != nil {
			metrics.KeepWarmPings.WithLabelValues(p.tts.Name(), "error").Inc()
			p.logger.Warn("keep-warm TTS ping failed", "provider", p.tts.Name(), "error", err)
		} else {
			metrics.KeepWarmPings.WithLabelValues(p.tts.Name(), "ok").Inc()
		}
	}
}
