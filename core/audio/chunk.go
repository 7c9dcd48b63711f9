package audio

import (
	"math"
	"time"
)

// Chunk is a fixed-length run of normalized samples in [-1, 1], interleaved
// when there is more than one channel.
//
// A chunk is immutable once produced: Samples must not be modified by any
// consumer, and it is handed to one pipeline stage at a time.
type Chunk struct {
	// Seq increases by one for every chunk the source produces.
	Seq        uint64
	Samples    []float32
	SampleRate int
	Channels   int
}

func (c Chunk) Frames() int {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	return len(c.Samples) / channels
}

func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// End is the stream time at which the chunk ends, derived from its sequence
// index. Detectors use it as their clock so their timing follows the audio
// rather than the wall clock.
func (c Chunk) End() time.Duration {
	return time.Duration(c.Seq+1) * c.Duration()
}

func (c Chunk) RMS() float64 {
	return RMS(c.Samples)
}

func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sumSquares float64
	for _, sample := range samples {
		sumSquares += float64(sample) * float64(sample)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
