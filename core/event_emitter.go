package orchestration

import "github.com/levial/levial/core/events"

type eventEmitter func(events.Event)

type callbacks struct {
	onEvent         func(events.Event)
	onStateChange   func(from, to State)
	onWakeWord      func(label string, confidence float64)
	onTranscription func(transcript string)
	onResponse      func(response string)
	onCancellation  func()
}

// newCallbackEventEmitter fans every event out to the generic handler and to
// the typed callback interested in it. It is called from several goroutines.
func newCallbackEventEmitter(cb callbacks) eventEmitter {
	return func(event events.Event) {
		if cb.onEvent != nil {
			cb.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.StateChanged:
			if cb.onStateChange != nil {
				from, _ := parseState(typedEvent.From)
				to, _ := parseState(typedEvent.To)
				cb.onStateChange(from, to)
			}
		case events.WakeWordDetected:
			if cb.onWakeWord != nil {
				cb.onWakeWord(typedEvent.Label, typedEvent.Confidence)
			}
		case events.UserTranscriptFinal:
			if cb.onTranscription != nil {
				cb.onTranscription(typedEvent.Transcript)
			}
		case events.AssistantResponseFinal:
			if cb.onResponse != nil {
				cb.onResponse(typedEvent.Text)
			}
		case events.TurnCancelled:
			if cb.onCancellation != nil {
				cb.onCancellation()
			}
		}
	}
}
