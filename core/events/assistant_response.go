package events

const (
	// KindAssistantResponseStarted identifies the start of response generation.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseFinal identifies the complete assistant reply.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseStarted marks that the language model was prompted.
type AssistantResponseStarted struct{ Base }

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted() AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted)}
}

// AssistantResponseFinal carries the assistant reply text.
type AssistantResponseFinal struct {
	Base
	Text string
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text}
}
