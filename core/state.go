package orchestration

// State is the stage of the conversation the orchestrator is in.
type State int

const (
	StateIdle State = iota
	StateListening
	StateCapturing
	StateTranscribing
	StateResponding
	StateSpeaking
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateListening:    "listening",
	StateCapturing:    "capturing",
	StateTranscribing: "transcribing",
	StateResponding:   "responding",
	StateSpeaking:     "speaking",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Active reports whether a turn is in flight. Only active states can be
// interrupted.
func (s State) Active() bool {
	return s >= StateCapturing && s <= StateSpeaking
}

func parseState(name string) (State, bool) {
	for state, stateName := range stateNames {
		if stateName == name {
			return state, true
		}
	}
	return StateIdle, false
}

// ListenMode selects what starts a capture while listening.
type ListenMode string

const (
	// ListenModeWakeWord starts a capture when a wake word model fires. A
	// wake word heard while the assistant is busy interrupts it.
	ListenModeWakeWord ListenMode = "wake-word"
	// ListenModeVoiceActivity starts a capture on speech onset.
	ListenModeVoiceActivity ListenMode = "voice-activity"
	// ListenModeManual only starts a capture on StartCapture.
	ListenModeManual ListenMode = "manual"
)
