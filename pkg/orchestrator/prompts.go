package orchestrator

import "strings"

const envelopeSchemaInstruction = `You are the voice ordering assistant for this restaurant. Always reply
with a single JSON object and nothing else, shaped exactly like:
{"spoken_response": string, "intent": "hi"|"add"|"info"|"recommend"|"error",
 "product_name": string|null, "product_id": integer|null, "quantity": integer,
 "recommendation": {"product_id": int, "product_name": str, "reason": str}|null}
Emit "spoken_response" as the first field. Keep it natural, spoken Turkish or
English matching the user, and split it into complete sentences ending in
'.', '!' or '?' so it can be read aloud as it is generated.`

// buildSystemPrompt composes the fixed system prompt: the JSON envelope
// schema, the opener-requirement rule, and the session's menu context.
func (b *Bridge) buildSystemPrompt(session *Session) string {
	var sb strings.Builder
	sb.WriteString(envelopeSchemaInstruction)
	sb.WriteString("\n\n")

	if len(b.openerPhrases) > 0 {
		sb.WriteString("When starting a reply to confirm an action or greet the guest, begin\n")
		sb.WriteString("spoken_response with one of these exact opener phrases verbatim, then\n")
		sb.WriteString("continue with the specific detail:\n")
		for _, p := range b.openerPhrases {
			sb.WriteString("- \"")
			sb.WriteString(p)
			sb.WriteString("\"\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Menu:\n")
	sb.WriteString(session.MenuContext)
	return sb.String()
}
