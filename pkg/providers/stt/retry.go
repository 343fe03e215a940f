package stt

import (
	"context"
	"time"

	"github.com/freya-voice/voicecore/internal/metrics"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

// attempt wraps a single provider call. statusCode is the HTTP status the
// provider returned, or 0 when the request never reached the provider
// (network error, context cancellation).
type attempt func() (text string, statusCode int, err error)

// withRetry runs a provider call with up to
// cfg.ProviderMaxRetries retries with exponential backoff
// (cfg.ProviderRetryBase, doubling) on a 5xx or transport failure, and an
// immediate ProviderPermanent on 4xx.
func withRetry(ctx context.Context, cfg orchestrator.Config, providerName string, do attempt) (string, error) {
	delay := cfg.ProviderRetryBase
	var lastErr error
	for try := 0; try <= cfg.ProviderMaxRetries; try++ {
		start := time.Now()
		text, status, err := do()
		metrics.ProviderLatency.WithLabelValues(providerName, "transcribe").Observe(time.Since(start).Seconds())
		if err == nil {
			return text, nil
		}
		lastErr = err

		if status >= 400 && status < 500 {
			metrics.ProviderErrors.WithLabelValues(providerName, "permanent").Inc()
			return "", orchestrator.NewProviderError(providerName, orchestrator.ErrProviderPermanent, status, err)
		}

		if try == cfg.ProviderMaxRetries {
			break
		}
		metrics.ProviderErrors.WithLabelValues(providerName, "retryable").Inc()

		select {
		case <-ctx.Done():
			return "", orchestrator.NewProviderError(providerName, orchestrator.ErrCancelled, status, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	metrics.ProviderErrors.WithLabelValues(providerName, "permanent").Inc()
	return "", orchestrator.NewProviderError(providerName, orchestrator.ErrProviderPermanent, 0, lastErr)
}
