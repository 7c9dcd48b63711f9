package events

const (
	// KindAssistantPlaybackStarted identifies playback start for the current response.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct {
	Base
	Path string
}

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted(path string) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted), Path: path}
}

// AssistantPlaybackEnded marks the end of playback. Interrupted is set when
// playback was stopped before it finished.
type AssistantPlaybackEnded struct {
	Base
	Interrupted bool
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(interrupted bool) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Interrupted: interrupted}
}
