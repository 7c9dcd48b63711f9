// Package detection decides, chunk by chunk, whether the live stream holds a
// wake word or speech.
//
// Both detectors keep time in audio time, derived from chunk sequence numbers,
// so their windows are deterministic and unaffected by scheduling delays.
package detection

import "github.com/levial/levial/core/audio"

type Kind string

const (
	KindWakeWord      Kind = "wake-word"
	KindVoiceActivity Kind = "voice-activity"
)

// Event is a single detection. Label is the model name for wake words and
// empty for voice activity.
type Event struct {
	Kind       Kind
	Label      string
	Confidence float64
	Seq        uint64
}

// KeywordModel scores a chunk against one wake word.
type KeywordModel interface {
	Name() string
	Predict(chunk audio.Chunk) (float64, error)
}

// Resetter is implemented by models that keep a rolling feature buffer which
// should be cleared after a detection.
type Resetter interface {
	Reset()
}

// Scorer returns the probability in [0, 1] that a chunk holds speech.
type Scorer interface {
	Score(chunk audio.Chunk) (float64, error)
}
