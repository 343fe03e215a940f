package stt

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// DefaultBoundedConcurrency is the default number of simultaneous
// Transcribe calls allowed across all sessions sharing a process.
const DefaultBoundedConcurrency = 4

// Bounded wraps an STTProvider with a process-wide concurrency limit,
// additive to the per-session partial-STT interval gate the controller
// already applies: a burst of simultaneous sessions cannot overwhelm the
// upstream endpoint.
type Bounded struct {
	inner orchestrator.STTProvider
	sem   *semaphore.Weighted
}

// NewBounded wraps provider with a semaphore of the given weight. A
// weight <= 0 defaults to DefaultBoundedConcurrency.
func NewBounded(provider orchestrator.STTProvider, weight int64) *Bounded {
	if weight <= 0 {
		weight = DefaultBoundedConcurrency
	}
	return &Bounded{inner: provider, sem: semaphore.NewWeighted(weight)}
}

func (b *Bounded) Name() string {
	return b.inner.Name()
}

// Transcribe acquires a slot before calling through, releasing it when
// the call returns. Respects ctx cancellation while waiting for a slot.
func (b *Bounded) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language, isFinal bool) (orchestrator.STTResult, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return orchestrator.STTResult{}, err
	}
	defer b.sem.Release(1)
	return b.inner.Transcribe(ctx, audio, lang, isFinal)
}
