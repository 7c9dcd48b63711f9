package events

// KindAssistantSpeechSynthesized identifies a synthesized reply.
const KindAssistantSpeechSynthesized Kind = "assistant_speech.synthesized"

// AssistantSpeechSynthesized carries the path of the synthesized reply.
type AssistantSpeechSynthesized struct {
	Base
	Path string
}

// NewAssistantSpeechSynthesized creates an assistant speech synthesized event.
func NewAssistantSpeechSynthesized(path string) AssistantSpeechSynthesized {
	return AssistantSpeechSynthesized{Base: NewBase(KindAssistantSpeechSynthesized), Path: path}
}
