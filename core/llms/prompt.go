package llms

import (
	"strings"
)

const DefaultSystemPrompt = "You are Local Voice Chat Agent, a concise helpful companion. " +
	"Answer conversationally in 1-3 sentences."

// Prompt is everything the model sees for one reply.
type Prompt struct {
	System string
	// Context is background retrieved from long-term memory. It is placed
	// after the system preamble.
	Context  string
	History  []Turn
	UserText string
}

// Instructions returns the system preamble followed by the memory context.
func (p Prompt) Instructions() string {
	system := p.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	if context := strings.TrimSpace(p.Context); context != "" {
		return system + "\n" + context
	}
	return system
}

// String renders the prompt as plain text for completion-style models:
//
//	<instructions>
//	USER: earlier question
//	ASSISTANT: earlier answer
//	USER: new question
//	ASSISTANT:
func (p Prompt) String() string {
	var b strings.Builder
	b.WriteString(p.Instructions())
	for _, turn := range p.History {
		b.WriteString("\n")
		b.WriteString(strings.ToUpper(string(turn.Role)))
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	b.WriteString("\nUSER: ")
	b.WriteString(p.UserText)
	b.WriteString("\nASSISTANT:")
	return b.String()
}
