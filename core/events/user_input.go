package events

import "time"

const (
	// KindWakeWordDetected identifies a wake word detection.
	KindWakeWordDetected Kind = "user_input.wake_word_detected"
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindCaptureStarted identifies the start of a recording session.
	KindCaptureStarted Kind = "user_input.capture_started"
	// KindCaptureFinished identifies a captured segment.
	KindCaptureFinished Kind = "user_input.capture_finished"
	// KindCaptureEmpty identifies a session that captured no audio.
	KindCaptureEmpty Kind = "user_input.capture_empty"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// WakeWordDetected carries the model that fired and its confidence.
type WakeWordDetected struct {
	Base
	Label      string
	Confidence float64
	Seq        uint64
}

// NewWakeWordDetected creates a wake word detected event.
func NewWakeWordDetected(label string, confidence float64, seq uint64) WakeWordDetected {
	return WakeWordDetected{Base: NewBase(KindWakeWordDetected), Label: label, Confidence: confidence, Seq: seq}
}

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct {
	Base
	Confidence float64
	Seq        uint64
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(confidence float64, seq uint64) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted), Confidence: confidence, Seq: seq}
}

// CaptureStarted marks the start of a recording session.
type CaptureStarted struct {
	Base
	PreRollChunks int
}

// NewCaptureStarted creates a capture started event.
func NewCaptureStarted(preRollChunks int) CaptureStarted {
	return CaptureStarted{Base: NewBase(KindCaptureStarted), PreRollChunks: preRollChunks}
}

// CaptureFinished carries a captured segment's metadata.
type CaptureFinished struct {
	Base
	Reason   string
	Duration time.Duration
	Path     string
}

// NewCaptureFinished creates a capture finished event.
func NewCaptureFinished(reason string, duration time.Duration, path string) CaptureFinished {
	return CaptureFinished{Base: NewBase(KindCaptureFinished), Reason: reason, Duration: duration, Path: path}
}

// CaptureEmpty marks a session that ended without audio.
type CaptureEmpty struct{ Base }

// NewCaptureEmpty creates a capture empty event.
func NewCaptureEmpty() CaptureEmpty {
	return CaptureEmpty{Base: NewBase(KindCaptureEmpty)}
}

// UserTranscriptFinal carries the terminal full transcript for the utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

// NewUserTranscriptFinal creates a final user transcript event.
func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}
