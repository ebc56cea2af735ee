// Package prompts builds the instructions sent to the realtime model.
package prompts

import "strings"

const DefaultInstructions = "You are a helpful voice assistant. Keep responses concise and conversational."

// ForSession resolves the instructions sent with session.update. An empty
// instructions string selects DefaultInstructions.
func ForSession(instructions, language string) string {
	base := strings.TrimSpace(instructions)
	if base == "" {
		base = DefaultInstructions
	}
	if language = strings.TrimSpace(language); language == "" {
		return base
	}
	return base + " Always respond in " + language + "."
}
