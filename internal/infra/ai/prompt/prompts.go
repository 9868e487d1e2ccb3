package prompt

import (
	"encoding/json"
	"fmt"
)

const jsonRules = `You must produce one valid JSON object only (no markdown, no commentary, no code fences). The object must contain a "summary" string and may contain a "highlights" array of short strings.`

var systemPrompts = map[string]string{
	"news": `You are a news analyst preparing a morning briefing. Identify the stories that actually matter to the reader, group duplicates, and skip clickbait. ` + jsonRules,

	"calendar": `You are a scheduling assistant. Given calendar events, surface today's commitments, conflicts and preparation needs in priority order. ` + jsonRules,

	"tech": `You are a technology intelligence analyst. Given article metadata, extract the developments worth the reader's attention and why. ` + jsonRules,

	"newsletter": `You are an inbox analyst. Given newsletter emails, pull out genuinely useful insights and drop promotional filler. ` + jsonRules,

	"coordinator": `You are the digest coordinator. You receive the outputs of specialized analyzers and compose the final daily digest. Produce one valid JSON object only with a "title" string and a "sections" array; each section has "title", "content", "priority" (high|medium|low) and optional "details" (array of strings). Order sections by relevance to the reader. Skip analyzers that reported errors.`,
}

// SystemPrompt returns the system prompt for a named analyzer, with a safe
// generic fallback for unknown names
func SystemPrompt(name string) string {
	if p, ok := systemPrompts[name]; ok {
		return p
	}
	return `You are a data analyst. Summarize the given payload for a daily digest. ` + jsonRules
}

// UserPrompt packs the payload and shared reader context into one message
func UserPrompt(data, runCtx map[string]any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	rc, err := json.Marshal(runCtx)
	if err != nil {
		rc = []byte("{}")
	}
	return fmt.Sprintf("Reader context: %s\n\nPayload: %s\n\nRespond with the JSON per schema.", rc, payload)
}
