package orchestrator

import (
	"context"

	"github.com/freya-voice/voicecore/pkg/opener"
)

// Orchestrator holds the process-wide collaborators (the inference
// clients and the opener cache) and assembles a Bridge + Controller per
// connection. They are injected here rather than reached for via
// package-level state, so tests can substitute in-memory fakes.
type Orchestrator struct {
	stt STTProvider
	llm LLMProvider
	tts TTSProvider

	opener *opener.Cache

	logger Logger
	cfg    Config
}

func New(stt STTProvider, llm LLMProvider, tts TTSProvider, openerCache *opener.Cache, logger Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Orchestrator{stt: stt, llm: llm, tts: tts, opener: openerCache, logger: logger, cfg: cfg}
}

// NewSession creates one session per connection, with an immutable scope,
// menu snapshot and product list resolved by the caller.
func (o *Orchestrator) NewSession(id, scopeID, menuContext string, products []Product) *Session {
	return NewSession(id, scopeID, menuContext, products, o.cfg)
}

// openerPhraseTexts returns the canonical opener phrase texts that the
// Bridge lists in the LLM's system prompt.
func (o *Orchestrator) openerPhraseTexts(phrases map[string]string) []string {
	texts := make([]string, 0, len(phrases))
	for _, text := range phrases {
		texts = append(texts, text)
	}
	return texts
}

// NewController wires a Bridge and Controller for one connection. The
// controller, not a global, owns the cancellation graph rooted at the
// connection.
func (o *Orchestrator) NewController(ctx context.Context, session *Session, openerPhrases map[string]string, sendEvent func(Event) error, sendAudio func([]byte) error) *Controller {
	bridge := NewBridge(o.llm, o.tts, o.opener, o.openerPhraseTexts(openerPhrases), o.logger, o.cfg)
	return NewController(ctx, session, bridge, o.stt, o.tts, o.logger, o.cfg, sendEvent, sendAudio)
}

func (o *Orchestrator) Config() Config {
	return o.cfg
}

func (o *Orchestrator) Providers() map[string]string {
	return map[string]string{
		"stt": o.stt.Name(),
		"llm": o.llm.Name(),
		"tts": o.tts.Name(),
	}
}
