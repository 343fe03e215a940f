package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/freya-voice/voicecore/internal/metrics"
	"github.com/freya-voice/voicecore/pkg/merge"
)

// Controller is the per-connection loop: it consumes inbound frames,
// schedules partial transcription, triggers speculative turns on
// end-of-utterance, reconciles speculation against the final transcript,
// and handles barge-in. Each spawned task gets its own child context
// rooted at the connection's; Close is idempotent.
type Controller struct {
	session *Session
	bridge  *Bridge
	stt     STTProvider
	tts     TTSProvider
	logger  Logger
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc

	sendEvent func(Event) error
	sendAudio func([]byte) error

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewController(
	ctx context.Context,
	session *Session,
	bridge *Bridge,
	stt STTProvider,
	tts TTSProvider,
	logger Logger,
	cfg Config,
	sendEvent func(Event) error,
	sendAudio func([]byte) error,
) *Controller {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Controller{
		session:   session,
		bridge:    bridge,
		stt:       stt,
		tts:       tts,
		logger:    logger,
		cfg:       cfg,
		ctx:       cctx,
		cancel:    cancel,
		sendEvent: sendEvent,
		sendAudio: sendAudio,
	}
}

// spawn runs fn on its own goroutine, tracked so Close can await every
// task rooted at this connection before returning.
func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// countWords reports the number of whitespace-separated words in s.
func countWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// OnAudioFrame handles an inbound audio frame: append to the buffer, bump
// the chunk count, and launch a partial-STT task if one is now due.
func (c *Controller) OnAudioFrame(chunk []byte) {
	c.session.AppendAudio(chunk)
	if c.session.ShouldRunPartialSTT() {
		c.launchPartialSTT()
	}
}

func (c *Controller) launchPartialSTT() {
	taskCtx, cancel := context.WithCancel(c.ctx)
	c.session.SetActivePartialSTT(cancel)
	snapshot := c.session.SnapshotAudio()
	lang := c.session.CurrentLanguage()

	c.spawn(func() {
		defer c.session.SetActivePartialSTT(nil)

		result, err := c.stt.Transcribe(taskCtx, snapshot, lang, false)
		if taskCtx.Err() != nil {
			return // cancelled: no user-visible emission
		}
		if err != nil {
			// A permanent provider failure on the partial path is logged and
			// swallowed; the session keeps listening.
			c.logger.Warn("partial stt failed", "session", c.session.ID, "error", err)
			return
		}
		if result.Skipped || result.Text == "" {
			return
		}

		merged := merge.Merge(c.session.PartialTranscript(), result.Text)
		c.session.SetPartialTranscript(merged)
		c.sendEvent(partialTranscriptEvent(merged, result.Confidence))
	})
}

// OnAudioEnd handles the end-of-utterance signal: cancel any in-flight
// partial STT, speculatively launch a turn on the current partial
// transcript if it's long enough, run final STT synchronously, and
// reconcile the two by token overlap.
func (c *Controller) OnAudioEnd() {
	// Hold briefly if a frame arrived within the grace window: clients
	// often signal end-of-utterance while the last frame is still in
	// flight, and snapshotting too early would drop it from the final
	// transcription.
	if last := c.session.LastChunkTime(); !last.IsZero() {
		if hold := c.cfg.SilenceBeforeEarlyLLM - time.Since(last); hold > 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(hold):
			}
		}
	}

	c.session.CancelPartialSTT()

	// Time-to-first-audio is measured from this signal, whichever turn
	// (speculative or final) ends up producing the audio.
	start := time.Now()
	var firstAudio sync.Once
	sendAudio := func(b []byte) error {
		firstAudio.Do(func() {
			metrics.FirstAudioLatency.Observe(time.Since(start).Seconds())
		})
		return c.sendAudio(b)
	}

	partial := c.session.PartialTranscript()
	speculative := countWords(partial) >= c.cfg.SpeculationMinWords

	// Everything the client sees before the first ai_token must be a
	// status or partial_transcript, so the status goes out before the
	// speculative stream can start producing tokens.
	c.sendEvent(statusEvent("transcribing"))

	var specCancel context.CancelFunc
	var specDone chan struct{}
	var specErr error

	if speculative {
		specCtx, cancel := context.WithCancel(c.ctx)
		specCancel = cancel
		c.session.SetActiveTurn(cancel)
		specDone = make(chan struct{})
		c.spawn(func() {
			defer close(specDone)
			specErr = c.bridge.RunTurn(specCtx, c.session, partial, c.sendEvent, sendAudio)
		})
	}

	audio := c.session.SnapshotAudio()
	lang := c.session.CurrentLanguage()
	result, sttErr := c.stt.Transcribe(c.ctx, audio, lang, true)

	var final string
	switch {
	case sttErr != nil || result.Skipped:
		if !speculative {
			c.logger.Warn("final stt failed with no speculation", "session", c.session.ID, "error", sttErr)
			c.sendEvent(errorEvent("I didn't catch that, could you say it again?"))
			c.resetToIdle()
			return
		}
		final = partial
	default:
		final = merge.Merge(partial, result.Text)
	}

	c.session.SetFullTranscript(final)

	overlap := merge.Overlap(partial, final)

	if speculative && overlap >= c.cfg.SpeculationOverlapThreshold {
		// The speculative stream is already emitting tokens; a transcript
		// event now would land mid-stream, so it is suppressed on a hit.
		metrics.SpeculationOutcome.WithLabelValues("hit").Inc()
		<-specDone
		c.session.SetActiveTurn(nil)
		if specErr != nil && specErr != ErrCancelled {
			c.logger.Warn("speculative turn failed", "session", c.session.ID, "error", specErr)
		}
	} else {
		if speculative {
			metrics.SpeculationOutcome.WithLabelValues("miss").Inc()
			specCancel()
			<-specDone
			c.session.SetActiveTurn(nil)
		}
		c.sendEvent(transcriptEvent(final))
		turnCtx, cancel := context.WithCancel(c.ctx)
		c.session.SetActiveTurn(cancel)
		err := c.bridge.RunTurn(turnCtx, c.session, final, c.sendEvent, sendAudio)
		c.session.SetActiveTurn(nil)
		if err != nil && err != ErrCancelled {
			c.logger.Warn("turn failed", "session", c.session.ID, "error", err)
		}
	}

	c.resetToIdle()
}

// OnInterrupt handles barge-in: cancel any in-flight work, clear buffers,
// acknowledge, return to listening.
func (c *Controller) OnInterrupt() {
	c.session.CancelPartialSTT()
	c.session.CancelActiveTurn()
	if c.tts != nil {
		if err := c.tts.Abort(); err != nil {
			c.logger.Warn("tts abort failed", "session", c.session.ID, "error", err)
		}
	}
	c.session.SetPartialTranscript("")
	c.session.ClearAudio(0)
	c.session.setState(StateListening)
	c.sendEvent(interruptAckEvent())
}

// OnAudioEndAsync runs OnAudioEnd on its own tracked goroutine so the
// caller's read loop keeps draining control frames (interrupt, ping)
// while the turn runs; Close awaits it.
func (c *Controller) OnAudioEndAsync() {
	c.spawn(c.OnAudioEnd)
}

// OnPing implements the ping input.
func (c *Controller) OnPing() {
	c.sendEvent(pongEvent())
}

func (c *Controller) resetToIdle() {
	c.session.ClearAudio(0)
	c.session.SetPartialTranscript("")
	c.session.Reset()
}

// Close cancels everything rooted at this connection's context and waits
// for every spawned task to observe the cancel before returning.
// Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.session.Close()
		c.cancel()
		c.wg.Wait()
	})
}
