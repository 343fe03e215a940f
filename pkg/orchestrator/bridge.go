package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freya-voice/voicecore/internal/metrics"
	"github.com/freya-voice/voicecore/pkg/opener"
)

// Bridge drives one complete reply: it consumes the LLM token stream,
// detects the first complete spoken sentence inside the streaming JSON
// envelope, fires TTS on that prefix while the LLM keeps generating,
// resolves structured fields, and emits the remainder.
type Bridge struct {
	llm LLMProvider
	tts TTSProvider

	opener        *opener.Cache
	openerPhrases []string

	logger Logger
	cfg    Config
}

func NewBridge(llm LLMProvider, tts TTSProvider, openerCache *opener.Cache, openerPhrases []string, logger Logger, cfg Config) *Bridge {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Bridge{llm: llm, tts: tts, opener: openerCache, openerPhrases: openerPhrases, logger: logger, cfg: cfg}
}

// ttsRelay buffers audio chunks emitted by the early-triggered TTS task
// until the caller flips it into pass-through mode, once tts_start has
// actually been sent to the client. tts_start must precede any audio
// chunk on the wire.
type ttsRelay struct {
	mu        sync.Mutex
	buffering bool
	queued    [][]byte
	sendAudio func([]byte) error
}

func (r *ttsRelay) onChunk(b []byte) error {
	r.mu.Lock()
	if r.buffering {
		r.queued = append(r.queued, append([]byte(nil), b...))
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.sendAudio(b)
}

func (r *ttsRelay) flush() error {
	r.mu.Lock()
	q := r.queued
	r.queued = nil
	r.buffering = false
	r.mu.Unlock()
	for _, b := range q {
		if err := r.sendAudio(b); err != nil {
			return err
		}
	}
	return nil
}

// RunTurn streams one full reply for transcript: LLM tokens out as they
// arrive, first-sentence TTS in parallel, envelope parse at stream end,
// recommendation resolution, remainder synthesis, history update.
func (b *Bridge) RunTurn(ctx context.Context, session *Session, transcript string, sendEvent func(Event) error, sendAudio func([]byte) error) (err error) {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrCancelled):
			outcome = "cancelled"
		case err != nil:
			outcome = "error"
		}
		metrics.TurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	session.setState(StateGeneratingLLM)
	if err := sendEvent(statusEvent("thinking")); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	systemPrompt := b.buildSystemPrompt(session)
	history := session.HistoryMessages()

	relay := &ttsRelay{buffering: true, sendAudio: sendAudio}
	group, groupCtx := errgroup.WithContext(ctx)

	var accumulated string
	sentenceFound := false
	firstSentenceText := ""

	onDelta := func(d TokenDelta) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		accumulated = d.Full
		if err := sendEvent(aiTokenEvent(d.Content, d.Full)); err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		if !sentenceFound {
			if s, ok := firstSentence(accumulated); ok {
				sentenceFound = true
				firstSentenceText = s
				group.Go(func() error {
					return b.synthesizeFirstSentence(groupCtx, session, s, relay)
				})
			}
		}
		return nil
	}

	finalText, err := b.llm.GenerateStream(ctx, systemPrompt, history, transcript, onDelta)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		sendEvent(errorEvent("I couldn't process that, could you repeat it?"))
		return fmt.Errorf("llm generate: %w", err)
	}
	if finalText == "" {
		finalText = accumulated
	}

	if ctx.Err() != nil {
		return ErrCancelled
	}

	env, parseErr := ParseEnvelope(finalText)
	if parseErr != nil {
		metrics.EnvelopeParseFailures.Inc()
		b.logger.Warn("envelope parse failure, using default envelope", "session", session.ID, "error", parseErr)
	}

	session.setState(StateStreamingTTS)
	if err := sendEvent(aiCompleteEvent(env)); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	if env.Intent == "recommend" && env.Recommendation != nil {
		if p, ok := ResolveRecommendation(env.Recommendation, session.Products); ok {
			sendEvent(recommendationEvent(p, env.Recommendation.Reason))
		} else {
			metrics.RecommendationsUnresolved.Inc()
			b.logger.Warn("recommendation unresolved", "product_id", env.Recommendation.ProductID)
		}
	}

	if err := sendEvent(ttsStartEvent()); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	if sentenceFound {
		if err := relay.flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		if err := group.Wait(); err != nil && ctx.Err() == nil {
			b.logger.Warn("parallel tts failed", "session", session.ID, "error", err)
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
	}

	remainder := env.SpokenResponse
	if sentenceFound && firstSentenceText != "" && strings.HasPrefix(remainder, firstSentenceText) {
		remainder = strings.TrimSpace(remainder[len(firstSentenceText):])
	}
	if remainder != "" {
		err := b.tts.StreamSynthesize(ctx, remainder, session.CurrentVoice(), session.CurrentLanguage(), sendAudio)
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			b.logger.Warn("remainder tts failed", "session", session.ID, "error", err)
		}
	}

	if err := sendEvent(ttsCompleteEvent()); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	session.AddHistory(transcript, env.SpokenResponse)
	session.Reset()
	return nil
}

// synthesizeFirstSentence consults the opener cache: cached bytes are
// emitted immediately (chunked at ~4 KiB) and only the opener-less
// remainder goes through TTS.
func (b *Bridge) synthesizeFirstSentence(ctx context.Context, session *Session, sentence string, relay *ttsRelay) error {
	const cacheChunkSize = 4096

	if b.opener != nil {
		if _, audio, remainder, ok := b.opener.Lookup(sentence); ok {
			metrics.OpenerCacheHits.Inc()
			for i := 0; i < len(audio); i += cacheChunkSize {
				end := i + cacheChunkSize
				if end > len(audio) {
					end = len(audio)
				}
				if err := relay.onChunk(audio[i:end]); err != nil {
					return err
				}
			}
			if remainder == "" {
				return nil
			}
			return b.tts.StreamSynthesize(ctx, remainder, session.CurrentVoice(), session.CurrentLanguage(), relay.onChunk)
		}
		metrics.OpenerCacheMisses.Inc()
	}

	return b.tts.StreamSynthesize(ctx, sentence, session.CurrentVoice(), session.CurrentLanguage(), relay.onChunk)
}
