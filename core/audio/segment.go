package audio

import "time"

// CaptureReason records which stop condition ended a capture session.
type CaptureReason string

const (
	CaptureReasonManualStop     CaptureReason = "manual-stop"
	CaptureReasonSilenceTimeout CaptureReason = "silence-timeout"
	CaptureReasonDurationCap    CaptureReason = "duration-cap"
)

// Segment is a captured utterance: the ordered chunks between a start and a
// stop boundary.
type Segment struct {
	Chunks     []Chunk
	SampleRate int
	Channels   int
	Reason     CaptureReason
	// Energy holds the RMS of every chunk, in chunk order.
	Energy []float64
}

// NewSegment builds a segment from chunks in capture order. The chunks are
// not copied; ownership passes to the segment.
func NewSegment(chunks []Chunk, reason CaptureReason) *Segment {
	segment := &Segment{Chunks: chunks, Reason: reason, Energy: make([]float64, len(chunks))}
	for i, chunk := range chunks {
		segment.Energy[i] = chunk.RMS()
	}
	if len(chunks) > 0 {
		segment.SampleRate = chunks[0].SampleRate
		segment.Channels = chunks[0].Channels
	}
	return segment
}

func (s *Segment) Duration() time.Duration {
	var duration time.Duration
	for _, chunk := range s.Chunks {
		duration += chunk.Duration()
	}
	return duration
}

// Samples returns all chunk samples concatenated and clipped to [-1, 1].
func (s *Segment) Samples() []float32 {
	total := 0
	for _, chunk := range s.Chunks {
		total += len(chunk.Samples)
	}

	samples := make([]float32, 0, total)
	for _, chunk := range s.Chunks {
		for _, sample := range chunk.Samples {
			samples = append(samples, clip(sample))
		}
	}
	return samples
}

func (s *Segment) PeakEnergy() float64 {
	peak := 0.0
	for _, energy := range s.Energy {
		peak = max(peak, energy)
	}
	return peak
}

func (s *Segment) EncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: s.SampleRate, Channels: s.Channels, Format: EncodingLinear16}
}
