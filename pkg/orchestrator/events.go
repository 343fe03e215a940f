package orchestrator

import "strings"

// Event is an outbound JSON text-frame message. A plain map keeps the
// wire shape explicit without a one-off struct for every discriminator.
type Event map[string]interface{}

func statusEvent(message string) Event {
	return Event{"type": "status", "message": message}
}

func pongEvent() Event {
	return Event{"type": "pong"}
}

func partialTranscriptEvent(text string, confidence float64) Event {
	return Event{
		"type":          "partial_transcript",
		"text":          text,
		"confidence":    confidence,
		"is_final":      false,
		"is_incomplete": isIncompleteTranscript(text),
	}
}

// isIncompleteTranscript flags a partial transcript not ending in
// sentence-final punctuation. Informational for the client UI only; it
// never gates server-side logic.
func isIncompleteTranscript(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	last := text[len(text)-1]
	return last != '.' && last != '!' && last != '?'
}

func transcriptEvent(text string) Event {
	return Event{"type": "transcript", "text": text, "is_final": true}
}

func aiTokenEvent(token, fullText string) Event {
	return Event{"type": "ai_token", "token": token, "full_text": fullText}
}

func aiCompleteEvent(env Envelope) Event {
	return Event{"type": "ai_complete", "data": env}
}

func recommendationEvent(p Product, reason string) Event {
	return Event{"type": "recommendation", "product": map[string]interface{}{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"image_url":   p.ImageURL,
		"category":    p.Category,
		"allergens":   p.Allergens,
		"reason":      reason,
	}}
}

func ttsStartEvent() Event {
	return Event{"type": "tts_start"}
}

func ttsCompleteEvent() Event {
	return Event{"type": "tts_complete"}
}

func interruptAckEvent() Event {
	return Event{"type": "interrupt_ack"}
}

func errorEvent(message string) Event {
	return Event{"type": "error", "message": message}
}

// GreetingEvent is the optional text-only greeting sent on connect.
func GreetingEvent(text string) Event {
	return Event{"type": "greeting", "text": text}
}
